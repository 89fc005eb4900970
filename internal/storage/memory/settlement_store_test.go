package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

func TestApplyIsUniquePerLeagueMatch(t *testing.T) {
	ctx := context.Background()
	store := NewSettlementStore()
	leagueID := uuid.New()
	managerID := uuid.New()

	settlement := &models.Settlement{
		ID:        uuid.New(),
		LeagueID:  leagueID,
		MatchID:   "2026-08-22-ars-che",
		AppliedAt: time.Now(),
	}
	entries := []models.PointsLedgerEntry{
		{ID: uuid.New(), LeagueID: leagueID, ManagerID: managerID, MatchID: settlement.MatchID, PointsDelta: 9, Reason: "goals + win"},
	}
	if err := store.Apply(ctx, settlement, entries); err != nil {
		t.Fatalf("apply: %v", err)
	}

	again := &models.Settlement{
		ID:        uuid.New(),
		LeagueID:  leagueID,
		MatchID:   settlement.MatchID,
		AppliedAt: time.Now(),
	}
	if err := store.Apply(ctx, again, entries); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key for replayed match, got %v", err)
	}

	got, ledger, err := store.Get(ctx, leagueID, settlement.MatchID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != settlement.ID {
		t.Fatal("expected the first applied settlement to survive the replay")
	}
	if len(ledger) != 1 || ledger[0].PointsDelta != 9 {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}
}

func TestPointsByManagerSumsAcrossMatches(t *testing.T) {
	ctx := context.Background()
	store := NewSettlementStore()
	leagueID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	matches := []struct {
		matchID string
		entries []models.PointsLedgerEntry
	}{
		{
			matchID: "m1",
			entries: []models.PointsLedgerEntry{
				{ID: uuid.New(), LeagueID: leagueID, ManagerID: alice, MatchID: "m1", PointsDelta: 7},
				{ID: uuid.New(), LeagueID: leagueID, ManagerID: bob, MatchID: "m1", PointsDelta: 2},
			},
		},
		{
			matchID: "m2",
			entries: []models.PointsLedgerEntry{
				{ID: uuid.New(), LeagueID: leagueID, ManagerID: alice, MatchID: "m2", PointsDelta: 4},
			},
		},
	}
	for _, m := range matches {
		settlement := &models.Settlement{ID: uuid.New(), LeagueID: leagueID, MatchID: m.matchID, AppliedAt: time.Now()}
		if err := store.Apply(ctx, settlement, m.entries); err != nil {
			t.Fatalf("apply %s: %v", m.matchID, err)
		}
	}

	totals, err := store.PointsByManager(ctx, leagueID)
	if err != nil {
		t.Fatalf("points by manager: %v", err)
	}
	if totals[alice] != 11 {
		t.Fatalf("expected alice at 11, got %d", totals[alice])
	}
	if totals[bob] != 2 {
		t.Fatalf("expected bob at 2, got %d", totals[bob])
	}

	other, err := store.PointsByManager(ctx, uuid.New())
	if err != nil {
		t.Fatalf("points for empty league: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected empty totals for unknown league, got %v", other)
	}
}
