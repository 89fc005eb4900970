package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) Append(_ context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.LeagueID == uuid.Nil || entry.Action == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	return nil
}

func (s *AuditStore) ListByLeague(_ context.Context, leagueID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].LeagueID != leagueID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
