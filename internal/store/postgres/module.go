package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskboard/task-events-service/config"
	"github.com/taskboard/task-events-service/internal/audit"
	"github.com/taskboard/task-events-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("postgres",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config) (*pgxpool.Pool, error) {
			pool, err := NewPool(context.Background(), cfg.Database.URL)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					pool.Close()
					return nil
				},
			})
			return pool, nil
		},
		fx.Annotate(NewAuditStore, fx.As(new(audit.Sink))),
		fx.Annotate(NewDeadLetterStore, fx.As(new(audit.DeadLetterSink))),
		fx.Annotate(NewTaskAccessStore, fx.As(new(service.TaskAccess))),
	),
)
