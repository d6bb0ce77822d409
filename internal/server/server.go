// Package server exposes the dev-sync endpoint: a long-lived websocket
// multiplexing handshake catch-up replies, heartbeats, and change updates,
// plus health and optional Prometheus exposition endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/xhyrom-forks/BunnyPlugins/internal/catchup"
	"github.com/xhyrom-forks/BunnyPlugins/internal/config"
	"github.com/xhyrom-forks/BunnyPlugins/internal/metrics"
)

// Server hosts the websocket endpoint backed by a catchup.Broadcaster.
type Server struct {
	cfg   *config.Config
	bcast *catchup.Broadcaster
	reg   *prom.Registry

	httpSrv *http.Server
}

// New creates the dev-sync server. The registry may be nil when metrics are
// disabled.
func New(cfg *config.Config, bcast *catchup.Broadcaster, reg *prom.Registry) *Server {
	return &Server{cfg: cfg, bcast: bcast, reg: reg}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if s.cfg.Metrics.Enabled {
		mux.Handle(s.cfg.Metrics.Path, metrics.HTTPHandler(s.reg))
	}
	return mux
}

// Start begins serving on the configured address. It returns once the
// listener is bound; serving continues until Stop.
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Dev.Host, fmt.Sprintf("%d", s.cfg.Dev.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	// Long-lived websocket connections: no read/write timeouts.
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Dev-sync server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Dev-sync server exited", "error", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
