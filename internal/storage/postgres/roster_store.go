package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// RosterStore implements storage.RosterStore using PostgreSQL. The
// (league_id, asset_ref) unique constraint is the ownership invariant's
// authoritative guard.
type RosterStore struct {
	pool *Pool
}

// NewRosterStore creates a new RosterStore.
func NewRosterStore(pool *Pool) *RosterStore {
	return &RosterStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RosterStore = (*RosterStore)(nil)

func (s *RosterStore) CreateEntry(ctx context.Context, entry *models.RosterEntry) error {
	if entry == nil || entry.LeagueID == uuid.Nil || entry.AssetRef == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO roster_entries (id, league_id, manager_id, asset_ref, price_paid, acquired_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.LeagueID,
		entry.ManagerID,
		entry.AssetRef,
		entry.PricePaid,
		entry.AcquiredAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert roster entry: %w", err)
	}
	return nil
}

func (s *RosterStore) ListByLeague(ctx context.Context, leagueID uuid.UUID) ([]models.RosterEntry, error) {
	query := `
		SELECT id, league_id, manager_id, asset_ref, price_paid, acquired_at
		FROM roster_entries
		WHERE league_id = $1
		ORDER BY acquired_at ASC
	`
	rows, err := s.pool.Query(ctx, query, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list roster entries: %w", err)
	}
	defer rows.Close()

	var out []models.RosterEntry
	for rows.Next() {
		var e models.RosterEntry
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.ManagerID, &e.AssetRef, &e.PricePaid, &e.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster rows: %w", err)
	}
	return out, nil
}

func (s *RosterStore) OwnerOf(ctx context.Context, leagueID uuid.UUID, assetRef string) (*models.RosterEntry, error) {
	query := `
		SELECT id, league_id, manager_id, asset_ref, price_paid, acquired_at
		FROM roster_entries
		WHERE league_id = $1 AND asset_ref = $2
	`
	var e models.RosterEntry
	err := s.pool.QueryRow(ctx, query, leagueID, assetRef).
		Scan(&e.ID, &e.LeagueID, &e.ManagerID, &e.AssetRef, &e.PricePaid, &e.AcquiredAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get roster owner: %w", err)
	}
	return &e, nil
}
