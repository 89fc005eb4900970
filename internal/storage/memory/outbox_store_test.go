package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/storage"
)

func outboxEvent(t events.Type) events.Event {
	return events.Event{
		ID:         uuid.New(),
		Type:       t,
		LeagueID:   uuid.New(),
		AuctionID:  uuid.New(),
		OccurredAt: time.Now(),
		Payload:    []byte(`{}`),
	}
}

func TestOutboxFetchUnsentInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	store := NewOutboxStore()

	first := outboxEvent(events.TypeLotOpened)
	second := outboxEvent(events.TypeBidAccepted)
	third := outboxEvent(events.TypeLotSold)
	for _, ev := range []events.Event{first, second, third} {
		if err := store.Insert(ctx, ev); err != nil {
			t.Fatalf("insert %s: %v", ev.Type, err)
		}
	}

	if err := store.MarkSent(ctx, second.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	unsent, err := store.FetchUnsent(ctx, 10)
	if err != nil {
		t.Fatalf("fetch unsent: %v", err)
	}
	if len(unsent) != 2 {
		t.Fatalf("expected 2 unsent rows, got %d", len(unsent))
	}
	if unsent[0].Event.ID != first.ID || unsent[1].Event.ID != third.ID {
		t.Fatal("expected unsent rows in insertion order with sent row skipped")
	}

	limited, err := store.FetchUnsent(ctx, 1)
	if err != nil {
		t.Fatalf("fetch unsent limited: %v", err)
	}
	if len(limited) != 1 || limited[0].Event.ID != first.ID {
		t.Fatal("expected limit to cap at the oldest unsent row")
	}
}

func TestOutboxMarkSentIsSticky(t *testing.T) {
	ctx := context.Background()
	store := NewOutboxStore()

	ev := outboxEvent(events.TypeAuctionStarted)
	if err := store.Insert(ctx, ev); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, ev); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key on re-insert, got %v", err)
	}

	row, err := store.FetchByID(ctx, ev.ID)
	if err != nil {
		t.Fatalf("fetch by id: %v", err)
	}
	if row.SentAt != nil {
		t.Fatal("fresh row should be unsent")
	}

	if err := store.MarkSent(ctx, ev.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	row, _ = store.FetchByID(ctx, ev.ID)
	if row.SentAt == nil {
		t.Fatal("expected sent_at after mark")
	}

	if err := store.MarkSent(ctx, uuid.New()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}
