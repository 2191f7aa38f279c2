// Package poller consumes checkout-completed events and empties the buyer's cart.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

const retryDelay = time.Second

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// MessageReader is the subset of *kafka.Reader the poller uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	carts      CartClearer
	reader     MessageReader
	retryDelay time.Duration
	log        *slog.Logger
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewPoller(carts CartClearer, reader MessageReader, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		carts:      carts,
		reader:     reader,
		retryDelay: retryDelay,
		log:        log.With("component", "checkout_poller"),
	}
}

// Run consumes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.log.ErrorContext(ctx, "checkout poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

func (p *Poller) poll(ctx context.Context) error {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		return err
	}

	// The reader has already moved past m, so a later commit would cover it.
	// Keep retrying m until it is handled.
	for attempt := 1; ; attempt++ {
		err := p.handleMessage(ctx, m)
		if err == nil {
			break
		}
		p.log.ErrorContext(ctx, "checkout event failed, retrying",
			"offset", m.Offset, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.retryDelay):
		}
	}
	return p.reader.CommitMessages(ctx, m)
}

// handleMessage clears the cart named by one event. Malformed events and
// users without a cart are skipped.
func (p *Poller) handleMessage(ctx context.Context, m kafka.Message) error {
	var event checkoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.WarnContext(ctx, "skipping unparsable checkout event", "offset", m.Offset, "error", err)
		return nil
	}
	if event.UserID == "" {
		p.log.WarnContext(ctx, "skipping checkout event without user_id", "offset", m.Offset)
		return nil
	}

	err := p.carts.Clear(ctx, event.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	p.log.InfoContext(ctx, "cart cleared after checkout", "user_id", event.UserID, "checkout_id", event.CheckoutID)
	return nil
}
