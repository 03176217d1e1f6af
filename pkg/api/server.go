package api

import (
	"context"
	"net/http"
	"time"

	"github.com/atd-dts/mds-ingest/pkg/log"
	"github.com/atd-dts/mds-ingest/pkg/metrics"
)

// Server is the sidecar ops listener for a pipeline run: health,
// readiness, liveness and Prometheus metrics. It carries no pipeline
// operations; runs are driven by the CLI.
type Server struct {
	mux *http.ServeMux
	srv *http.Server
}

// NewServer creates the ops server for addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	return &Server{
		mux: mux,
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start serves until Stop. A closed listener is a normal shutdown, not
// an error.
func (s *Server) Start() error {
	logger := log.WithComponent("api")
	logger.Info().Str("addr", s.srv.Addr).Msg("ops listener started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down, letting in-flight scrapes finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the route mux for tests and for embedding the ops
// endpoints into another listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}
