package admin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lockstepdb/lockstep/cfg"
	"github.com/lockstepdb/lockstep/sim"
)

// Server hosts the admin API, pprof and the metrics endpoint on one port.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the admin server over a scheduler and its stats
// collector.
func NewServer(scheduler *sim.Scheduler, stats *sim.Stats) *Server {
	mux := http.NewServeMux()

	// Register pprof handlers for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	RegisterRoutes(mux, NewHandlers(scheduler, stats))

	addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.Address, cfg.Config.Admin.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	log.Info().Str("address", s.httpServer.Addr).Msg("Starting admin server")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()
	return nil
}

// Stop gracefully stops the admin server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Admin server shutdown failed")
	}
}
