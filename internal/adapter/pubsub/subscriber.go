package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
	infrapubsub "github.com/taskboard/task-events-service/infra/pubsub"
)

// SubscriberProvider hands handlers their subscribers without exposing
// broker configuration.
type SubscriberProvider struct {
	provider *infrapubsub.Provider
}

func NewSubscriberProvider(p *infrapubsub.Provider) *SubscriberProvider {
	return &SubscriberProvider{provider: p}
}

// Build returns a subscriber participating in the named group.
func (sp *SubscriberProvider) Build(group string) (message.Subscriber, error) {
	return sp.provider.BuildGroupSubscriber(group)
}
