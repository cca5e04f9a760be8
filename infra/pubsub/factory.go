package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/taskboard/task-events-service/config"
)

// Provider builds Watermill publishers and subscribers over the AMQP
// broker. Topics map to durable topic exchanges; queue naming decides
// the delivery semantics (see BuildGroupSubscriber).
type Provider struct {
	url    string
	logger watermill.LoggerAdapter
}

func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) *Provider {
	return &Provider{url: cfg.Broker.URL, logger: logger}
}

func (p *Provider) BuildPublisher() (message.Publisher, error) {
	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(p.url, nil), p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build publisher: %w", err)
	}
	return pub, nil
}

// BuildGroupSubscriber returns a subscriber whose queue name is derived
// from the topic plus the group suffix. Instances sharing a group share
// the queue and divide the stream (competing consumers); a distinct
// group gets its own queue and an independent full copy.
func (p *Provider) BuildGroupSubscriber(group string) (message.Subscriber, error) {
	cfg := amqp.NewDurablePubSubConfig(p.url, amqp.GenerateQueueNameTopicNameWithSuffix("."+group))
	sub, err := amqp.NewSubscriber(cfg, p.logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: build subscriber for group %s: %w", group, err)
	}
	return sub, nil
}
