package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/handler/ws"
	"go.uber.org/fx"
)

var Module = fx.Module("http-server",
	fx.Provide(
		func(logger *slog.Logger, cfg *config.Config, gateway *ws.Gateway) *Server {
			return NewServer(logger, cfg, http.Handler(gateway))
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, s *Server) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := s.Start(); err != nil {
						s.logger.Error("http server stopped", "error", err)
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)
