package registry

import (
	"context"

	"github.com/taskboard/task-events-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		func(cfg *config.Config) *Hub {
			return NewHub(
				WithMailboxSize(cfg.Gateway.MailboxSize),
				WithSendTimeout(cfg.Gateway.SendTimeout),
				WithIdleTimeout(cfg.Gateway.IdleTimeout),
				WithEvictionInterval(cfg.Gateway.EvictionInterval),
			)
		},
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
