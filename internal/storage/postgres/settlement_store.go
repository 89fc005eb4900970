package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// SettlementStore implements storage.SettlementStore using PostgreSQL.
// Apply writes the settlement row and its ledger entries in one
// transaction; the (league_id, match_id) unique constraint turns a
// duplicate apply into ErrDuplicateKey with nothing written.
type SettlementStore struct {
	pool *Pool
}

// NewSettlementStore creates a new SettlementStore.
func NewSettlementStore(pool *Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettlementStore = (*SettlementStore)(nil)

func (s *SettlementStore) Apply(ctx context.Context, settlement *models.Settlement, entries []models.PointsLedgerEntry) error {
	if settlement == nil || settlement.LeagueID == uuid.Nil || settlement.MatchID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO settlements (id, league_id, match_id, applied_at)
		VALUES ($1, $2, $3, $4)
	`, settlement.ID, settlement.LeagueID, settlement.MatchID, settlement.AppliedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert settlement: %w", err)
	}

	for _, entry := range entries {
		_, err = tx.Exec(ctx, `
			INSERT INTO points_ledger (id, league_id, manager_id, match_id, points_delta, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, entry.ID, entry.LeagueID, entry.ManagerID, entry.MatchID, entry.PointsDelta, entry.Reason, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	return nil
}

func (s *SettlementStore) Get(ctx context.Context, leagueID uuid.UUID, matchID string) (*models.Settlement, []models.PointsLedgerEntry, error) {
	var settlement models.Settlement
	err := s.pool.QueryRow(ctx, `
		SELECT id, league_id, match_id, applied_at
		FROM settlements
		WHERE league_id = $1 AND match_id = $2
	`, leagueID, matchID).Scan(&settlement.ID, &settlement.LeagueID, &settlement.MatchID, &settlement.AppliedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("get settlement: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, league_id, manager_id, match_id, points_delta, reason, created_at
		FROM points_ledger
		WHERE league_id = $1 AND match_id = $2
		ORDER BY created_at ASC, id ASC
	`, leagueID, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("get ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.PointsLedgerEntry
	for rows.Next() {
		var e models.PointsLedgerEntry
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.ManagerID, &e.MatchID, &e.PointsDelta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return &settlement, entries, nil
}

func (s *SettlementStore) PointsByManager(ctx context.Context, leagueID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT manager_id, COALESCE(SUM(points_delta), 0)
		FROM points_ledger
		WHERE league_id = $1
		GROUP BY manager_id
	`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("sum points by manager: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int64)
	for rows.Next() {
		var managerID uuid.UUID
		var total int64
		if err := rows.Scan(&managerID, &total); err != nil {
			return nil, fmt.Errorf("scan points row: %w", err)
		}
		totals[managerID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points rows: %w", err)
	}
	return totals, nil
}
