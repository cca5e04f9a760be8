package amqp

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/taskboard/task-events-service/config"
	pubsubadapter "github.com/taskboard/task-events-service/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		pubsubadapter.NewSubscriberProvider,

		NewEventHandler,
		NewWatermillRouter,
	),

	fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, h *EventHandler, router *message.Router, subProvider *pubsubadapter.SubscriberProvider) error {
		if err := h.RegisterHandlers(cfg, router, subProvider); err != nil {
			return err
		}

		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					defer close(done)
					if err := router.Run(runCtx); err != nil {
						h.logger.Error("router stopped", "error", err)
						_ = shutdowner.Shutdown()
					}
				}()

				// Wait for the router to be ready so handlers never
				// miss deliveries published right after startup.
				select {
				case <-router.Running():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			OnStop: func(ctx context.Context) error {
				// Close drains in-flight handlers first, which is what
				// keeps the commit-after-write discipline intact during
				// shutdown: unacked deliveries are simply redelivered.
				cancel()
				err := router.Close()
				select {
				case <-done:
				case <-ctx.Done():
				}
				return err
			},
		})
		return nil
	}),
)
