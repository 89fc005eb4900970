// Package outbox journals committed auction events and relays them to the
// message bus. The engine writes events through JournalPublisher in the same
// breath as the state change; the relay drains the journal to NATS, so a
// crash between commit and publish loses nothing.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/storage"
)

// JournalPublisher is an events.Publisher that journals into the outbox
// store instead of touching the bus.
type JournalPublisher struct {
	store storage.OutboxStore
}

// NewJournalPublisher creates a journaling publisher.
func NewJournalPublisher(store storage.OutboxStore) *JournalPublisher {
	return &JournalPublisher{store: store}
}

var _ events.Publisher = (*JournalPublisher)(nil)

func (p *JournalPublisher) Publish(ctx context.Context, event events.Event) error {
	if err := p.store.Insert(ctx, event); err != nil {
		return fmt.Errorf("journal event %s: %w", event.ID, err)
	}
	return nil
}

// RelayConfig tunes the relay's retry and batching behavior.
type RelayConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	BatchSize  int
}

// DefaultRelayConfig returns default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries: 5,
		RetryDelay: 200 * time.Millisecond,
		BatchSize:  100,
	}
}

// Relay drains journaled events to a downstream publisher and marks them
// sent. It is driven by the listener's notifications and fallback ticks.
type Relay struct {
	store     storage.OutboxStore
	publisher events.Publisher
	cfg       RelayConfig
}

// NewRelay creates a relay over the journal.
func NewRelay(store storage.OutboxStore, publisher events.Publisher, cfg RelayConfig) *Relay {
	return &Relay{store: store, publisher: publisher, cfg: cfg}
}

// DeliverByID publishes one journaled event and marks it sent. Already-sent
// rows are skipped, so a duplicate notification is harmless.
func (r *Relay) DeliverByID(ctx context.Context, id uuid.UUID) error {
	row, err := r.store.FetchByID(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch outbox event: %w", err)
	}
	if row.SentAt != nil {
		return nil
	}

	if err := r.publishWithRetry(ctx, row.Event); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	if err := r.store.MarkSent(ctx, id); err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}

	log.Debug().Str("event_id", id.String()).Msg("relayed outbox event")
	return nil
}

// DrainUnsent publishes every unsent journaled event. Failed events stay
// unsent and are retried on the next drain.
func (r *Relay) DrainUnsent(ctx context.Context) error {
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch unsent events: %w", err)
	}

	for _, row := range unsent {
		if err := r.publishWithRetry(ctx, row.Event); err != nil {
			log.Error().Err(err).Str("event_id", row.Event.ID.String()).Msg("failed to publish event")
			continue
		}
		if err := r.store.MarkSent(ctx, row.Event.ID); err != nil {
			log.Error().Err(err).Str("event_id", row.Event.ID.String()).Msg("failed to mark event as sent")
		}
	}
	return nil
}

// publishWithRetry publishes with linear backoff, giving up after
// MaxRetries+1 attempts.
func (r *Relay) publishWithRetry(ctx context.Context, event events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
