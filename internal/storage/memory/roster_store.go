package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// RosterStore is an in-memory implementation of storage.RosterStore.
// It enforces the same (league_id, asset_ref) uniqueness as the Postgres
// schema so constraint behavior is testable without a database.
type RosterStore struct {
	mu      sync.RWMutex
	entries map[string]*models.RosterEntry // keyed by league|asset
}

// NewRosterStore creates a new in-memory roster store.
func NewRosterStore() *RosterStore {
	return &RosterStore{
		entries: make(map[string]*models.RosterEntry),
	}
}

// Compile-time interface check.
var _ storage.RosterStore = (*RosterStore)(nil)

func rosterKey(leagueID uuid.UUID, assetRef string) string {
	return fmt.Sprintf("%s|%s", leagueID, assetRef)
}

func (s *RosterStore) CreateEntry(_ context.Context, entry *models.RosterEntry) error {
	if entry == nil || entry.LeagueID == uuid.Nil || entry.AssetRef == "" {
		return storage.ErrInvalidInput
	}

	key := rosterKey(entry.LeagueID, entry.AssetRef)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *entry
	s.entries[key] = &cp
	return nil
}

func (s *RosterStore) ListByLeague(_ context.Context, leagueID uuid.UUID) ([]models.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RosterEntry
	for _, e := range s.entries {
		if e.LeagueID == leagueID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out, nil
}

func (s *RosterStore) OwnerOf(_ context.Context, leagueID uuid.UUID, assetRef string) (*models.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[rosterKey(leagueID, assetRef)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}
