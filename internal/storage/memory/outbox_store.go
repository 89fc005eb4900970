package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/storage"
)

// OutboxStore is an in-memory implementation of storage.OutboxStore.
type OutboxStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*storage.OutboxRow
	order []uuid.UUID
}

// NewOutboxStore creates a new in-memory outbox store.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		rows: make(map[uuid.UUID]*storage.OutboxRow),
	}
}

// Compile-time interface check.
var _ storage.OutboxStore = (*OutboxStore)(nil)

func (s *OutboxStore) Insert(_ context.Context, event events.Event) error {
	if event.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[event.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.rows[event.ID] = &storage.OutboxRow{Event: event}
	s.order = append(s.order, event.ID)
	return nil
}

func (s *OutboxStore) FetchByID(_ context.Context, id uuid.UUID) (*storage.OutboxRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *OutboxStore) FetchUnsent(_ context.Context, limit int) ([]storage.OutboxRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.OutboxRow
	for _, id := range s.order {
		row := s.rows[id]
		if row.SentAt != nil {
			continue
		}
		out = append(out, *row)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *OutboxStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	row.SentAt = &now
	return nil
}
