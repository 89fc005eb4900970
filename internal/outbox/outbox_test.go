package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/storage/memory"
)

// flakyPublisher fails the first failures calls, then succeeds.
type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []events.Event
}

func (p *flakyPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return errors.New("bus unavailable")
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *flakyPublisher) published() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

func testEvent(t *testing.T) events.Event {
	t.Helper()
	evt, err := events.New(events.TypeBidAccepted, uuid.New(), uuid.New(), time.Now(), map[string]int64{"amount": 10})
	require.NoError(t, err)
	return evt
}

func relayConfig() RelayConfig {
	return RelayConfig{MaxRetries: 3, RetryDelay: time.Millisecond, BatchSize: 10}
}

func TestJournalPublisherInserts(t *testing.T) {
	store := memory.NewOutboxStore()
	journal := NewJournalPublisher(store)
	ctx := context.Background()

	evt := testEvent(t)
	require.NoError(t, journal.Publish(ctx, evt))

	row, err := store.FetchByID(ctx, evt.ID)
	require.NoError(t, err)
	require.Equal(t, evt.ID, row.Event.ID)
	require.Nil(t, row.SentAt)
}

func TestDeliverByIDMarksSent(t *testing.T) {
	store := memory.NewOutboxStore()
	sink := &flakyPublisher{}
	relay := NewRelay(store, sink, relayConfig())
	ctx := context.Background()

	evt := testEvent(t)
	require.NoError(t, store.Insert(ctx, evt))
	require.NoError(t, relay.DeliverByID(ctx, evt.ID))

	row, err := store.FetchByID(ctx, evt.ID)
	require.NoError(t, err)
	require.NotNil(t, row.SentAt)
	require.Len(t, sink.published(), 1)

	// Duplicate notification is a no-op.
	require.NoError(t, relay.DeliverByID(ctx, evt.ID))
	require.Len(t, sink.published(), 1)
}

func TestDeliverByIDRetriesTransientFailures(t *testing.T) {
	store := memory.NewOutboxStore()
	sink := &flakyPublisher{failures: 2}
	relay := NewRelay(store, sink, relayConfig())
	ctx := context.Background()

	evt := testEvent(t)
	require.NoError(t, store.Insert(ctx, evt))
	require.NoError(t, relay.DeliverByID(ctx, evt.ID))
	require.Len(t, sink.published(), 1)
}

func TestDeliverByIDGivesUpAfterMaxRetries(t *testing.T) {
	store := memory.NewOutboxStore()
	sink := &flakyPublisher{failures: 100}
	relay := NewRelay(store, sink, relayConfig())
	ctx := context.Background()

	evt := testEvent(t)
	require.NoError(t, store.Insert(ctx, evt))
	require.Error(t, relay.DeliverByID(ctx, evt.ID))

	// The row stays unsent for the fallback sweep.
	row, err := store.FetchByID(ctx, evt.ID)
	require.NoError(t, err)
	require.Nil(t, row.SentAt)
}

func TestDrainUnsentSkipsSentAndKeepsFailed(t *testing.T) {
	store := memory.NewOutboxStore()
	ctx := context.Background()

	first := testEvent(t)
	second := testEvent(t)
	third := testEvent(t)
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))
	require.NoError(t, store.Insert(ctx, third))
	require.NoError(t, store.MarkSent(ctx, first.ID))

	// The first publish attempt fails once; with zero retries the second
	// event stays unsent while the third goes through.
	sink := &flakyPublisher{failures: 1}
	relay := NewRelay(store, sink, RelayConfig{MaxRetries: 0, RetryDelay: time.Millisecond, BatchSize: 10})
	require.NoError(t, relay.DrainUnsent(ctx))

	require.Len(t, sink.published(), 1)
	require.Equal(t, third.ID, sink.published()[0].ID)

	row, err := store.FetchByID(ctx, second.ID)
	require.NoError(t, err)
	require.Nil(t, row.SentAt)

	// A later sweep picks the failed event back up.
	require.NoError(t, relay.DrainUnsent(ctx))
	row, err = store.FetchByID(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, row.SentAt)
}
