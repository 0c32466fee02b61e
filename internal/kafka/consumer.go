package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/models"
	"github.com/trogers1052/paper-trader/internal/trading"
)

// Opener opens a simulated position for a vetted token
type Opener interface {
	OpenPosition(ctx context.Context, tokenID, tokenName string) (trading.Result, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer reads open position requests published by the token vetting
// pipeline. Rejected requests are logged and committed; they are not
// retried.
type Consumer struct {
	reader messageReader
	opener Opener
	logger *zap.Logger
}

// NewConsumer creates a new Kafka consumer for open position requests
func NewConsumer(brokers []string, topic, groupID string, opener Opener, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader: reader,
		opener: opener,
		logger: logger.Named("kafka-consumer"),
	}
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka consumer shutting down")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("error reading message", zap.Error(err))
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error("error processing message",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var req models.OpenPositionRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("failed to unmarshal open position request: %w", err)
	}

	if req.EventType != models.EventOpenPositionRequested {
		c.logger.Debug("ignoring event", zap.String("event_type", req.EventType))
		return nil
	}
	if req.TokenID == "" {
		return errors.New("open position request without token_id")
	}

	log := c.logger.With(zap.String("token_id", req.TokenID), zap.String("source", req.Source))

	result, err := c.opener.OpenPosition(ctx, req.TokenID, req.TokenName)
	if err != nil {
		return fmt.Errorf("failed to open position for %s: %w", req.TokenID, err)
	}
	if !result.Filled() {
		log.Info("open request rejected", zap.String("reason", result.Reason))
		return nil
	}

	log.Info("open request filled",
		zap.Stringer("buy_price", result.Trade.BuyPrice),
		zap.Stringer("balance", result.Balance))
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
