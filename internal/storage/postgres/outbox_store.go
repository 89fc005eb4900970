package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/storage"
)

// OutboxStore implements storage.OutboxStore using PostgreSQL. An insert
// fires the outbox trigger, which NOTIFYs the relay with the event ID.
type OutboxStore struct {
	pool *Pool
}

// NewOutboxStore creates a new OutboxStore.
func NewOutboxStore(pool *Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutboxStore = (*OutboxStore)(nil)

func (s *OutboxStore) Insert(ctx context.Context, event events.Event) error {
	if event.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	var auctionID *uuid.UUID
	if event.AuctionID != uuid.Nil {
		auctionID = &event.AuctionID
	}

	query := `
		INSERT INTO outbox_events (id, event_type, league_id, auction_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		event.ID,
		string(event.Type),
		event.LeagueID,
		auctionID,
		event.OccurredAt,
		event.Payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (s *OutboxStore) FetchByID(ctx context.Context, id uuid.UUID) (*storage.OutboxRow, error) {
	query := `
		SELECT id, event_type, league_id, auction_id, occurred_at, payload, sent_at
		FROM outbox_events
		WHERE id = $1
	`
	row, err := scanOutboxRow(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("fetch outbox event: %w", err)
	}
	return row, nil
}

func (s *OutboxStore) FetchUnsent(ctx context.Context, limit int) ([]storage.OutboxRow, error) {
	query := `
		SELECT id, event_type, league_id, auction_id, occurred_at, payload, sent_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY occurred_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent events: %w", err)
	}
	defer rows.Close()

	var out []storage.OutboxRow
	for rows.Next() {
		row, err := scanOutboxRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE outbox_events SET sent_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRow(row rowScanner) (*storage.OutboxRow, error) {
	var out storage.OutboxRow
	var eventType string
	var auctionID *uuid.UUID
	err := row.Scan(
		&out.Event.ID,
		&eventType,
		&out.Event.LeagueID,
		&auctionID,
		&out.Event.OccurredAt,
		&out.Event.Payload,
		&out.SentAt,
	)
	if err != nil {
		return nil, err
	}
	out.Event.Type = events.Type(eventType)
	if auctionID != nil {
		out.Event.AuctionID = *auctionID
	}
	return &out, nil
}
