package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// AuctionStore implements storage.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *Pool
}

// NewAuctionStore creates a new AuctionStore.
func NewAuctionStore(pool *Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *models.Auction) error {
	if auction == nil || auction.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO auctions (id, league_id, status, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		auction.ID,
		auction.LeagueID,
		string(auction.Status),
		auction.StartedAt,
		auction.CompletedAt,
		auction.CreatedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

func (s *AuctionStore) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	query := `
		SELECT id, league_id, status, started_at, completed_at, created_at, updated_at
		FROM auctions
		WHERE id = $1
	`
	auction, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return auction, nil
}

func (s *AuctionStore) UpdateAuction(ctx context.Context, auction *models.Auction) error {
	if auction == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE auctions
		SET status = $2, started_at = $3, completed_at = $4, updated_at = $5
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		auction.ID,
		string(auction.Status),
		auction.StartedAt,
		auction.CompletedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *AuctionStore) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	query := `
		SELECT id, league_id, status, started_at, completed_at, created_at, updated_at
		FROM auctions
		ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	var out []models.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction row: %w", err)
		}
		out = append(out, *auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auction rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) CreateLot(ctx context.Context, lot *models.Lot) error {
	if lot == nil || lot.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO lots (id, auction_id, asset_ref, status, top_bid, top_bidder, opens_at, deadline_at, extension_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		lot.ID,
		lot.AuctionID,
		lot.AssetRef,
		string(lot.Status),
		lot.TopBid,
		lot.TopBidder,
		lot.OpensAt,
		lot.DeadlineAt,
		lot.ExtensionCount,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (s *AuctionStore) UpdateLot(ctx context.Context, lot *models.Lot) error {
	if lot == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE lots
		SET status = $2, top_bid = $3, top_bidder = $4, opens_at = $5, deadline_at = $6, extension_count = $7
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		lot.ID,
		string(lot.Status),
		lot.TopBid,
		lot.TopBidder,
		lot.OpensAt,
		lot.DeadlineAt,
		lot.ExtensionCount,
	)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *AuctionStore) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	query := `
		SELECT id, auction_id, asset_ref, status, top_bid, top_bidder, opens_at, deadline_at, extension_count
		FROM lots
		WHERE id = $1
	`
	lot, err := scanLot(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}
	return lot, nil
}

func (s *AuctionStore) GetOpenLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	query := `
		SELECT id, auction_id, asset_ref, status, top_bid, top_bidder, opens_at, deadline_at, extension_count
		FROM lots
		WHERE auction_id = $1 AND status IN ('PENDING', 'OPEN', 'CLOSING')
	`
	lot, err := scanLot(s.pool.QueryRow(ctx, query, auctionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open lot: %w", err)
	}
	return lot, nil
}

func (s *AuctionStore) ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	query := `
		SELECT id, auction_id, asset_ref, status, top_bid, top_bidder, opens_at, deadline_at, extension_count
		FROM lots
		WHERE auction_id = $1
		ORDER BY opens_at ASC NULLS LAST
	`
	rows, err := s.pool.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var out []models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lot row: %w", err)
		}
		out = append(out, *lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lot rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) InsertBid(ctx context.Context, bid *models.Bid) error {
	if bid == nil || bid.ID == uuid.Nil || bid.LotID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO bids (id, lot_id, manager_id, amount, placed_at, accepted, reject_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		bid.ID,
		bid.LotID,
		bid.ManagerID,
		bid.Amount,
		bid.PlacedAt,
		bid.Accepted,
		string(bid.RejectReason),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (s *AuctionStore) ListBids(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	query := `
		SELECT id, lot_id, manager_id, amount, placed_at, accepted, reject_reason
		FROM bids
		WHERE lot_id = $1
		ORDER BY placed_at ASC
	`
	rows, err := s.pool.Query(ctx, query, lotID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var out []models.Bid
	for rows.Next() {
		var b models.Bid
		var reason string
		err := rows.Scan(&b.ID, &b.LotID, &b.ManagerID, &b.Amount, &b.PlacedAt, &b.Accepted, &reason)
		if err != nil {
			return nil, fmt.Errorf("scan bid row: %w", err)
		}
		b.RejectReason = models.RejectReason(reason)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bid rows: %w", err)
	}
	return out, nil
}

func scanAuction(row pgx.Row) (*models.Auction, error) {
	var a models.Auction
	var status string
	err := row.Scan(&a.ID, &a.LeagueID, &status, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = models.AuctionStatus(status)
	return &a, nil
}

func scanLot(row pgx.Row) (*models.Lot, error) {
	var l models.Lot
	var status string
	err := row.Scan(&l.ID, &l.AuctionID, &l.AssetRef, &status, &l.TopBid, &l.TopBidder, &l.OpensAt, &l.DeadlineAt, &l.ExtensionCount)
	if err != nil {
		return nil, err
	}
	l.Status = models.LotStatus(status)
	return &l, nil
}
