package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// SettlementStore is an in-memory implementation of storage.SettlementStore.
// Apply is atomic under the store mutex and emulates the
// (league_id, match_id) uniqueness constraint.
type SettlementStore struct {
	mu          sync.RWMutex
	settlements map[string]*models.Settlement         // keyed by league|match
	ledger      map[string][]models.PointsLedgerEntry // keyed by league|match
}

// NewSettlementStore creates a new in-memory settlement store.
func NewSettlementStore() *SettlementStore {
	return &SettlementStore{
		settlements: make(map[string]*models.Settlement),
		ledger:      make(map[string][]models.PointsLedgerEntry),
	}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

func settlementKey(leagueID uuid.UUID, matchID string) string {
	return fmt.Sprintf("%s|%s", leagueID, matchID)
}

func (s *SettlementStore) Apply(_ context.Context, settlement *models.Settlement, entries []models.PointsLedgerEntry) error {
	if settlement == nil || settlement.LeagueID == uuid.Nil || settlement.MatchID == "" {
		return storage.ErrInvalidInput
	}

	key := settlementKey(settlement.LeagueID, settlement.MatchID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.settlements[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *settlement
	s.settlements[key] = &cp
	ledger := make([]models.PointsLedgerEntry, len(entries))
	copy(ledger, entries)
	s.ledger[key] = ledger
	return nil
}

func (s *SettlementStore) Get(_ context.Context, leagueID uuid.UUID, matchID string) (*models.Settlement, []models.PointsLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := settlementKey(leagueID, matchID)
	settlement, ok := s.settlements[key]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}

	cp := *settlement
	entries := make([]models.PointsLedgerEntry, len(s.ledger[key]))
	copy(entries, s.ledger[key])
	return &cp, entries, nil
}

func (s *SettlementStore) PointsByManager(_ context.Context, leagueID uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[uuid.UUID]int64)
	for _, entries := range s.ledger {
		for _, e := range entries {
			if e.LeagueID == leagueID {
				totals[e.ManagerID] += e.PointsDelta
			}
		}
	}
	return totals, nil
}
