// Package events opens the broker that receives comment mutation events.
package events

import (
	"context"
	"fmt"

	"CommentThreads/internal/config"
	"CommentThreads/internal/events/kafka"
	"CommentThreads/internal/events/rabbitMQ"
	"CommentThreads/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Close() error
}

// Open returns nil for broker "none".
func Open(cfg config.Events) (Publisher, error) {
	const op = "events.Open"

	switch cfg.Broker {
	case config.BrokerNone, "":
		return nil, nil

	case config.BrokerRabbitMQ:
		p, err := rabbitMQ.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.RoutingKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return p, nil

	case config.BrokerKafka:
		p, err := kafka.CreateProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return p, nil
	}

	return nil, fmt.Errorf("%s: unknown broker %q", op, cfg.Broker)
}
