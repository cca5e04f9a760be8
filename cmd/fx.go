package cmd

import (
	"context"
	"log/slog"

	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/infra/otel"
	infrapubsub "github.com/taskboard/task-events-service/infra/pubsub"
	httpsrv "github.com/taskboard/task-events-service/infra/server/http"
	"github.com/taskboard/task-events-service/internal/adapter/pubsub"
	"github.com/taskboard/task-events-service/internal/audit"
	"github.com/taskboard/task-events-service/internal/domain/registry"
	amqphandler "github.com/taskboard/task-events-service/internal/handler/amqp"
	wshandler "github.com/taskboard/task-events-service/internal/handler/ws"
	"github.com/taskboard/task-events-service/internal/service"
	"github.com/taskboard/task-events-service/internal/store/postgres"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config, configFile string) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideTelemetry,
			ProvideLogger,
			ProvideWatermillLogger,
		),

		fx.Invoke(func(logger *slog.Logger) error {
			return config.WatchFile(configFile, logger, func(next *config.Config) {
				levelVar.Set(parseLevel(next.Service.LogLevel))
			})
		}),

		infrapubsub.Module,
		postgres.Module,
		pubsub.Module,
		audit.Module,
		registry.Module,
		service.Module,
		amqphandler.Module,
		wshandler.Module,
		httpsrv.Module,
	)
}

func ProvideTelemetry(lc fx.Lifecycle, cfg *config.Config) (*otel.Telemetry, error) {
	telemetry, err := otel.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return telemetry.Shutdown(ctx)
		},
	})
	return telemetry, nil
}
