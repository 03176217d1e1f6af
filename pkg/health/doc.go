/*
Package health probes the pipeline's backends and feeds the results into
the component map behind the metrics health endpoints.

Two checker types cover the backends a run depends on. The HTTP checker
probes endpoints that answer plain requests, like the warehouse healthz
route or a provider feed. The Func checker wraps a client call for
backends with their own transport, like the object store.

A Registry owns the probe loop:

	registry := health.NewRegistry(health.Config{Interval: 30 * time.Second})
	registry.Register("warehouse", health.NewHTTPChecker(endpoint+"/healthz"))
	registry.Register("provider", health.NewHTTPChecker(feedURL).WithStatusRange(200, 499))
	registry.Register("objectstore", health.NewFuncChecker(func(ctx context.Context) error {
		if !blobs.Ready() {
			return errors.New("object store not initialized")
		}
		return nil
	}))

	registry.Start(ctx)
	defer registry.Stop()

Status tracking applies hysteresis: a backend is marked unhealthy only
after Retries consecutive failures, and healthy again on the first
success. The run tool starts a registry next to its metrics listener so
a scheduler can see a wedged backend before the run fails.
*/
package health
