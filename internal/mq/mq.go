package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/linklite/apiserver/config"
	"go.uber.org/zap"
)

// ErrDisabled is returned by Connect when no broker is configured.
var ErrDisabled = errors.New("message queue disabled")

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ wraps a backend with a stable API and logs delivery problems.
type MQ struct {
	backend Backend
	logger  *zap.Logger
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend, logger *zap.Logger) *MQ {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQ{backend: backend, logger: logger}
}

// Connect dials the broker selected by cfg.Backend. It returns ErrDisabled
// for "none" so callers can run without account events.
func Connect(ctx context.Context, cfg config.MQConfig, logger *zap.Logger) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, ErrDisabled
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unsupported mq backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Backend, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return New(backend, logger.With(zap.String("mq_backend", cfg.Backend))), nil
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id, err := m.backend.Publish(ctx, channel, data, attrs)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return id, nil
}

// Subscribe consumes messages from the named channel until ctx is done.
// Handler failures are logged before the message is handed back to the broker.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, func(ctx context.Context, msg Message) error {
		if err := handler(ctx, msg); err != nil {
			m.logger.Warn("message handler failed",
				zap.String("channel", channel),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
