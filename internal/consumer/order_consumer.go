package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const EventOrderPlaced = "order.placed"

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// OrderEvent is the part of an order-events message the cart cares about.
type OrderEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id,omitempty"`
}

// CartClearer empties a cart once its contents became an order.
type CartClearer interface {
	ClearForCheckout(ctx context.Context, ownerID string) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Consumer struct {
	carts  CartClearer
	reader MessageReader
	log    *slog.Logger
}

func NewConsumer(carts CartClearer, cfg Config, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(carts, reader, log)
}

func newConsumer(carts CartClearer, reader MessageReader, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		carts:  carts,
		reader: reader,
		log:    log.With(slog.String("component", "order-consumer")),
	}
}

// Run consumes until ctx is cancelled. A message is committed once it has
// been handled or given up on.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("fetch message failed", slog.Any("err", err))
			if !sleep(ctx, retryBackoff) {
				return nil
			}
			continue
		}

		if err := c.processMessage(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("giving up on message",
				slog.Int("partition", m.Partition),
				slog.Int64("offset", m.Offset),
				slog.Any("err", err))
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error("commit failed", slog.Int64("offset", m.Offset), slog.Any("err", err))
		}
	}
}

func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("close kafka reader: %w", err)
	}
	return nil
}

// processMessage returns an error only when clearing the cart kept failing.
// Malformed or unrelated events are logged and skipped.
func (c *Consumer) processMessage(ctx context.Context, m kafka.Message) error {
	var event OrderEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Warn("skipping malformed message", slog.Int64("offset", m.Offset), slog.Any("err", err))
		return nil
	}
	if event.Type == "" {
		event.Type = headerValue(m, "event_type")
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	log := c.log.With(slog.String("event_id", event.EventID), slog.String("type", event.Type))

	if event.Type != EventOrderPlaced {
		log.Debug("skipping event")
		return nil
	}
	if event.UserID == "" {
		log.Warn("skipping order event without user_id")
		return nil
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = c.carts.ClearForCheckout(ctx, event.UserID)
		if err == nil {
			log.Info("cart cleared after order", slog.String("user_id", event.UserID))
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Warn("clear cart failed",
			slog.String("user_id", event.UserID),
			slog.Int("attempt", attempt),
			slog.Any("err", err))
		if attempt == maxAttempts {
			break
		}
		if !sleep(ctx, retryBackoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}

	return fmt.Errorf("clear cart for %s: %w", event.UserID, err)
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
