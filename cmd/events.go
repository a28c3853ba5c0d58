/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/linklite/apiserver/internal/mq"
	"github.com/linklite/apiserver/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow account events on the configured broker",
	Long: `Subscribes to EVENTS_CHANNEL and logs every account event until
interrupted. Requires MQ_BACKEND to be rabbitmq or pubsub. Usage:

	linklite events
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadRuntime()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Connect(ctx, cfg.MQ, logger)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("MQ_BACKEND must be rabbitmq or pubsub")
			}
			return err
		}
		defer queue.Close()

		logger.Info("following account events", zap.String("channel", cfg.MQ.Channel))
		err = queue.Subscribe(ctx, cfg.MQ.Channel, accountEventLogger(logger))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}

// accountEventLogger logs each decoded account event.
func accountEventLogger(logger *zap.Logger) mq.Handler {
	return func(ctx context.Context, msg mq.Message) error {
		var event types.AccountEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			// Redelivery cannot fix a bad payload, so it is acked and dropped.
			logger.Warn("skipping undecodable message", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		logger.Info("account event",
			zap.String("message_id", msg.ID),
			zap.String("type", string(event.Type)),
			zap.String("user_id", event.UserID),
			zap.String("name", event.Name),
			zap.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}
}
