package health

import (
	"context"
	"time"
)

// FuncChecker adapts a plain function into a Checker. It covers backends
// whose clients carry their own transport, like the object store, where
// an HTTP probe would bypass the configured credentials.
type FuncChecker struct {
	fn func(ctx context.Context) error
}

// NewFuncChecker wraps fn. A nil error means healthy.
func NewFuncChecker(fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{fn: fn}
}

// Check runs the wrapped function
func (f *FuncChecker) Check(ctx context.Context) Result {
	start := time.Now()

	err := f.fn(ctx)
	result := Result{
		Healthy:   err == nil,
		Message:   "ok",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// Type returns the health check type
func (f *FuncChecker) Type() CheckType {
	return CheckTypeFunc
}
