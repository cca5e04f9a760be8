package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/taskboard/task-events-service/config"
)

// Server wraps the HTTP listener carrying the health endpoint and the
// websocket upgrade path.
type Server struct {
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(logger *slog.Logger, cfg *config.Config, gateway http.Handler) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/ws", gateway)

	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:        cfg.Server.Addr,
			Handler:     r,
			ReadTimeout: cfg.Server.ReadTimeout,
			// WriteTimeout stays unset: it would sever long-lived
			// websocket sessions. Write deadlines are managed per
			// message by the gateway.
		},
	}
}

func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
