package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/taskboard/task-events-service/infra/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub-adapter",
	fx.Provide(
		func(p *infrapubsub.Provider) (message.Publisher, error) {
			return p.BuildPublisher()
		},
		NewEventDispatcher,
	),
)
