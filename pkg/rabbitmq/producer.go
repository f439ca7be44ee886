package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

// Publisher publishes JSON bodies to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body any) error
	Close()
}

// Producer holds one connection and a channel that is reopened after a publish failure.
type Producer struct {
	conn *amqp.Connection
	log  *slog.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// Fallback drops every message. It stands in when no broker is configured.
type Fallback struct {
	Log *slog.Logger
}

func (p Fallback) Publish(_ context.Context, exchange, routingKey string, _ any) error {
	if p.Log != nil {
		p.Log.Debug("publish skipped", "exchange", exchange, "routing_key", routingKey)
	}
	return nil
}

func (Fallback) Close() {}

// SanitizeURL trims quotes and stray characters from an env-provided broker URL.
func SanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("rabbitmq: scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

func dial(raw string) (*amqp.Connection, error) {
	clean, err := SanitizeURL(raw)
	if err != nil {
		return nil, err
	}
	// Bounded dial so startup does not hang on an unreachable broker.
	return amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
}

func NewProducer(amqpURL string, log *slog.Logger) (*Producer, error) {
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
	return &Producer{conn: conn, ch: ch, log: log.With("component", "rabbitmq_producer")}, nil
}

// Publish declares the exchange and publishes body as JSON. A failed publish reopens the
// channel and retries once.
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publish(ctx, exchange, routingKey, payload)
	if err == nil {
		return nil
	}
	p.log.Warn("publish failed; reopening channel", "exchange", exchange, "routing_key", routingKey, "err", err)

	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	p.ch = ch
	return p.publish(ctx, exchange, routingKey, payload)
}

func (p *Producer) publish(ctx context.Context, exchange, routingKey string, payload []byte) error {
	if err := p.ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
