package service

import (
	"log/slog"

	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config) *JWTAuther {
				return NewJWTAuther(cfg.Auth.JWTSecret)
			},
			fx.As(new(Auther)),
		),
		fx.Annotate(
			func(hub registry.Hubber, auther Auther, access TaskAccess, cfg *config.Config) *DeliveryService {
				return NewDeliveryService(hub, auther, access, cfg.Gateway.SendBuffer, cfg.Gateway.EnforceOwnership)
			},
			fx.As(new(Deliverer)),
		),
	),

	// Intercept the Auther to add logging without touching handlers.
	fx.Decorate(func(orig Auther, logger *slog.Logger) Auther {
		return &autherMiddleware{
			next:   orig,
			logger: logger,
		}
	}),
)
