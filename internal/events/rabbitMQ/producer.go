package rabbitMQ

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CommentThreads/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type QueueProps struct {
	Channel    Channel
	Exchange   string
	RoutingKey string
	conn       *amqp.Connection
}

// Dial opens a connection and a channel and declares the events exchange.
func Dial(url, exchange, routingKey string) (*QueueProps, error) {
	const op = "events.rabbitMQ.Dial"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	qp, err := NewQueueProps(ch, exchange, routingKey)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	qp.conn = conn

	return qp, nil
}

// NewQueueProps declares a durable topic exchange on ch, so consumers can bind
// to "<routing key>.comment.*" or a single kind.
func NewQueueProps(ch Channel, exchange, routingKey string) (*QueueProps, error) {
	const op = "events.rabbitMQ.NewQueueProps"

	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to declare exchange: %w", op, err)
	}

	return &QueueProps{
		Channel:    ch,
		Exchange:   exchange,
		RoutingKey: routingKey,
	}, nil
}

// Publish sends the event as persistent JSON.
func (qp *QueueProps) Publish(ctx context.Context, ev models.Event) error {
	const op = "events.rabbitMQ.Publish"

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = qp.Channel.PublishWithContext(
		ctx,
		qp.Exchange,
		qp.RoutingKey+"."+ev.Kind,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    ev.At,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: failed to publish a message: %w", op, err)
	}

	return nil
}

func (qp *QueueProps) Close() error {
	err := qp.Channel.Close()
	if qp.conn != nil {
		if cerr := qp.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
