package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/internal/logging"
)

// Server exposes the registered collectors on /metrics and a liveness probe
// on /health.
type Server struct {
	server *http.Server
	log    *logrus.Entry
}

// NewServer constructs a Server bound to port (no leading colon).
func NewServer(port string, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{Addr: ":" + port, Handler: mux},
		log:    logger.WithFields(logging.NewFields().Component("metrics").ToLogrus()),
	}
}

// StartAsync begins serving in a background goroutine; a listen error is
// logged, not returned, since the caller has no synchronous point to observe
// it at.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithFields(logging.NewFields().Operation("listen").Error(err).ToLogrus()).
				Error("metricsServerFailed")
		}
	}()
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}
