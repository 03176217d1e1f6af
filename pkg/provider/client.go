package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/rs/zerolog"

	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/types"
)

const (
	// DefaultMaxPages bounds link-following for providers that page, so a
	// self-referencing next link cannot loop forever.
	DefaultMaxPages = 100

	// DefaultMaxAttempts applies when a profile does not set max_attempts.
	DefaultMaxAttempts = 3

	// DefaultTimeoutSeconds applies when a profile does not set timeout.
	DefaultTimeoutSeconds = 10

	acceptTemplate = "application/vnd.mds.provider+json;version=%s"
)

var (
	// ErrUnsupportedVersion is returned by New when the profile names an
	// MDS dialect the client has no parameter table for.
	ErrUnsupportedVersion = errors.New("unsupported mds version")

	// ErrAuthFailure covers both local credential problems and 401/403
	// answers from the provider. It is never retried.
	ErrAuthFailure = errors.New("provider authentication failed")
)

// ResponseError is a provider answer outside the 200 range. A Status of
// -1 marks requests that never produced an HTTP response, such as
// timeouts and connection failures.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("provider request timed out: %s", e.Body)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// Timeout reports whether the request never reached an HTTP status.
func (e *ResponseError) Timeout() bool {
	return e.Status == int(types.StatusTimeout)
}

// Envelope is the wire shape of one page of a provider answer. Every
// supported dialect shares it.
type Envelope struct {
	Version string      `json:"version"`
	Data    TripPayload `json:"data"`
	Links   PageLinks   `json:"links,omitempty"`
}

// TripPayload carries the trips of one page. Trips stay as raw maps
// until validation assigns them a shape.
type TripPayload struct {
	Trips []map[string]any `json:"trips"`
}

// PageLinks carries the paging cursors of an answer.
type PageLinks struct {
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// TripsResult is the merged outcome of a trips query across all pages.
type TripsResult struct {
	Version string
	Trips   []map[string]any
	Pages   int
}

// Count returns the number of trips fetched.
func (r *TripsResult) Count() int { return len(r.Trips) }

// Envelope re-wraps the merged trips in the provider wire shape, so the
// payload written to the object store reads like a single page.
func (r *TripsResult) Envelope() Envelope {
	return Envelope{Version: r.Version, Data: TripPayload{Trips: r.Trips}}
}

// TripFilters narrows a trips query beyond the time window. Zero fields
// are omitted from the request.
type TripFilters struct {
	DeviceID  string
	VehicleID string
	BBox      string
}

// Client talks to one provider's MDS feed. It is safe for use by a
// single block at a time; the orchestrator builds one client per block.
type Client struct {
	profile       types.ProviderProfile
	schema        ParamSchema
	headers       http.Header
	http          *http.Client
	boff          backoff.Config
	authFn        AuthFunc
	logger        zerolog.Logger
	authenticated bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The profile's
// timeout is not applied on top of a caller-supplied client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAuthFunc registers the authenticator used by the custom method.
func WithAuthFunc(fn AuthFunc) Option {
	return func(c *Client) { c.authFn = fn }
}

// WithBackoff replaces the retry wait bounds. The attempt cap always
// comes from the profile's max_attempts.
func WithBackoff(cfg backoff.Config) Option {
	return func(c *Client) { c.boff = cfg }
}

// WithParamSchema forces a parameter table, overriding the version
// lookup. Profile overrides still apply on top.
func WithParamSchema(s ParamSchema) Option {
	return func(c *Client) { c.schema = s }
}

// New builds a client for the profile. It performs no network calls;
// Authenticate runs lazily on the first request or explicitly.
func New(profile types.ProviderProfile, opts ...Option) (*Client, error) {
	c := &Client{
		profile: profile,
		headers: make(http.Header),
		boff: backoff.Config{
			MinBackoff: time.Second,
			MaxBackoff: 30 * time.Second,
		},
		logger: log.WithProvider(profile.Name),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.schema == nil {
		schema, ok := schemaForVersion(profile.Version)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, profile.Version)
		}
		c.schema = schema
	}
	c.schema = c.schema.clone()
	c.schema.applyOverride(profile.ParamOverride)

	if c.http == nil {
		timeout := profile.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeoutSeconds
		}
		c.http = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	attempts := profile.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	c.boff.MaxRetries = attempts

	c.headers.Set("Accept", fmt.Sprintf(acceptTemplate, profile.Version.Short()))
	return c, nil
}

// GetTrips fetches every trip in the window (start, end] and merges
// paged answers into one result. Times are epoch seconds.
func (c *Client) GetTrips(ctx context.Context, start, end int64) (*TripsResult, error) {
	return c.GetTripsFiltered(ctx, start, end, TripFilters{})
}

// GetTripsFiltered is GetTrips with optional device, vehicle and bbox
// narrowing. Filters ride only on the first request; subsequent pages
// follow the provider's next link untouched.
func (c *Client) GetTripsFiltered(ctx context.Context, start, end int64, filters TripFilters) (*TripsResult, error) {
	if !c.authenticated {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	params := url.Values{}
	params.Set(c.schema.wire(ParamStartTime), strconv.FormatInt(start, 10))
	params.Set(c.schema.wire(ParamEndTime), strconv.FormatInt(end, 10))
	if filters.DeviceID != "" {
		params.Set(c.schema.wire(ParamDeviceID), filters.DeviceID)
	}
	if filters.VehicleID != "" {
		params.Set(c.schema.wire(ParamVehicleID), filters.VehicleID)
	}
	if filters.BBox != "" {
		params.Set(c.schema.wire(ParamBBox), filters.BBox)
	}

	maxPages := c.profile.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	result := &TripsResult{}
	next := strings.TrimRight(c.profile.APIBaseURL, "/") + "/trips"
	for {
		env, err := c.fetchPage(ctx, next, params)
		if err != nil {
			return nil, err
		}
		result.Pages++
		if result.Version == "" {
			result.Version = env.Version
		}
		result.Trips = append(result.Trips, env.Data.Trips...)

		if !c.profile.Paging || env.Links.Next == "" {
			break
		}
		if result.Pages >= maxPages {
			c.logger.Warn().
				Int("pages", result.Pages).
				Int("trips", len(result.Trips)).
				Msg("page budget exhausted, truncating result")
			break
		}
		next = env.Links.Next
		params = nil
	}

	c.logger.Debug().
		Int("pages", result.Pages).
		Int("trips", len(result.Trips)).
		Msg("trips fetched")
	return result, nil
}

// fetchPage requests one page, retrying transient failures with
// exponential backoff up to the profile's attempt cap. Auth failures
// and other client errors return immediately.
func (c *Client) fetchPage(ctx context.Context, rawURL string, params url.Values) (*Envelope, error) {
	boff := backoff.New(ctx, c.boff)
	var lastErr error
	for boff.Ongoing() {
		env, err := c.request(ctx, rawURL, params)
		if err == nil {
			return env, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn().
			Err(err).
			Int("attempt", boff.NumRetries()+1).
			Msg("provider request failed")
		boff.Wait()
	}
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", boff.NumRetries(), lastErr)
}

// request performs a single HTTP round trip, honoring the profile's
// delay first. Transport failures are folded into a synthetic -1 status
// so callers can record them like any other provider answer.
func (c *Client) request(ctx context.Context, rawURL string, params url.Values) (*Envelope, error) {
	if err := c.delay(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building trips request: %w", err)
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}
	for key, vals := range c.headers {
		for _, v := range vals {
			req.Header.Set(key, v)
		}
	}

	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ResponseError{Status: int(types.StatusTimeout), Body: err.Error()}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		var env Envelope
		if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("decoding trips page: %w", err)
		}
		return &env, nil
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: provider returned status %d", ErrAuthFailure, res.StatusCode)
	default:
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &ResponseError{Status: res.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
}

// delay honors the profile's politeness interval before every request,
// including retries and page follows.
func (c *Client) delay(ctx context.Context) error {
	if c.profile.DelaySeconds <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(c.profile.DelaySeconds) * time.Second)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryable reports whether a request error deserves another attempt.
// Timeouts, connection failures, 429 and 5xx answers qualify; auth
// failures and other 4xx answers do not.
func retryable(err error) bool {
	if errors.Is(err, ErrAuthFailure) {
		return false
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Timeout() || re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	return false
}
