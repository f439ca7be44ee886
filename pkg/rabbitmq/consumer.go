package rabbitmq

import (
	"context"
	"errors"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning false requeues it.
type Handler func(ctx context.Context, body []byte) bool

type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func NewConsumer(amqpURL string, log *slog.Logger) (*Consumer, error) {
	conn, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{conn: conn, ch: ch, log: log.With("component", "rabbitmq_consumer")}, nil
}

// Consume binds queueName to exchange under each routing key and dispatches deliveries
// until ctx is done or the channel closes. An empty queueName declares a server-named,
// exclusive queue that goes away with the connection.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return errors.New("rabbitmq: no bindings provided")
	}
	if err := c.ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return err
	}

	durable, exclusive := true, false
	if queueName == "" {
		durable, exclusive = false, true
	}
	q, err := c.ch.QueueDeclare(queueName, durable, !durable, exclusive, false, nil)
	if err != nil {
		return err
	}
	for key, h := range bindings {
		if h == nil {
			continue
		}
		if err := c.ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq: delivery channel closed")
			}
			h := bindings[d.RoutingKey]
			if h == nil {
				c.log.Warn("no handler for routing key; dropping", "routing_key", d.RoutingKey)
				_ = d.Ack(false)
				continue
			}
			if h(ctx, d.Body) {
				_ = d.Ack(false)
			} else {
				c.log.Warn("handler failed; requeueing", "routing_key", d.RoutingKey)
				_ = d.Nack(false, true)
			}
		}
	}
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
