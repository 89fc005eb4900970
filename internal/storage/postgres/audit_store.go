package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// AuditStore implements storage.AuditStore using PostgreSQL.
type AuditStore struct {
	pool *Pool
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(pool *Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil || entry.LeagueID == uuid.Nil || entry.Action == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO audit_log (id, league_id, auction_id, actor_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		entry.ID,
		entry.LeagueID,
		entry.AuctionID,
		entry.ActorID,
		entry.Action,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *AuditStore) ListByLeague(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	query := `
		SELECT id, league_id, auction_id, actor_id, action, detail, created_at
		FROM audit_log
		WHERE league_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, leagueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.AuctionID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}
