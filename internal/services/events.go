package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/linklite/apiserver/types"
	"go.uber.org/zap"
)

// EventPublisher sends an opaque payload to a named channel.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// AccountEvents announces account changes on a message channel. Delivery is
// best effort: failures are logged and never reach the caller. A nil
// *AccountEvents is valid and publishes nothing.
type AccountEvents struct {
	publisher EventPublisher
	channel   string
	logger    *zap.Logger
	now       func() time.Time
}

func NewAccountEvents(publisher EventPublisher, channel string, logger *zap.Logger) *AccountEvents {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountEvents{
		publisher: publisher,
		channel:   channel,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *AccountEvents) announce(ctx context.Context, eventType types.AccountEventType, user types.User) {
	if e == nil {
		return
	}

	payload, err := json.Marshal(types.AccountEvent{
		Type:       eventType,
		UserID:     user.ID,
		Name:       user.Name,
		OccurredAt: e.now().UTC(),
	})
	if err != nil {
		e.logger.Error("encode account event", zap.String("type", string(eventType)), zap.Error(err))
		return
	}

	id, err := e.publisher.Publish(ctx, e.channel, payload, map[string]string{"type": string(eventType)})
	if err != nil {
		e.logger.Warn("publish account event",
			zap.String("type", string(eventType)),
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("account event published", zap.String("type", string(eventType)), zap.String("message_id", id))
}
