package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/models"
)

// Sentinel errors shared by every store implementation.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey indicates a uniqueness constraint was violated.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidInput indicates the caller passed malformed data.
	ErrInvalidInput = errors.New("invalid input")
)

// AuctionStore persists auctions, lots and bids.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *models.Auction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	UpdateAuction(ctx context.Context, auction *models.Auction) error
	// ListAuctions returns every auction, newest first. Used for session
	// recovery on process start.
	ListAuctions(ctx context.Context) ([]models.Auction, error)

	CreateLot(ctx context.Context, lot *models.Lot) error
	UpdateLot(ctx context.Context, lot *models.Lot) error
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	// GetOpenLot returns the auction's single non-terminal lot, or
	// ErrNotFound when nothing is on the block.
	GetOpenLot(ctx context.Context, auctionID uuid.UUID) (*models.Lot, error)
	ListLots(ctx context.Context, auctionID uuid.UUID) ([]models.Lot, error)

	InsertBid(ctx context.Context, bid *models.Bid) error
	ListBids(ctx context.Context, lotID uuid.UUID) ([]models.Bid, error)
}

// RosterStore persists club ownership. CreateEntry returns ErrDuplicateKey
// when the (league_id, asset_ref) uniqueness constraint is violated.
type RosterStore interface {
	CreateEntry(ctx context.Context, entry *models.RosterEntry) error
	ListByLeague(ctx context.Context, leagueID uuid.UUID) ([]models.RosterEntry, error)
	// OwnerOf returns the entry owning assetRef in the league, or
	// ErrNotFound when the club is unowned.
	OwnerOf(ctx context.Context, leagueID uuid.UUID, assetRef string) (*models.RosterEntry, error)
}

// SettlementStore persists settlements and the points ledger. Apply writes
// the settlement row and its ledger entries as one atomic unit keyed by the
// (league_id, match_id) uniqueness constraint; a duplicate returns
// ErrDuplicateKey with no partial writes.
type SettlementStore interface {
	Apply(ctx context.Context, settlement *models.Settlement, entries []models.PointsLedgerEntry) error
	Get(ctx context.Context, leagueID uuid.UUID, matchID string) (*models.Settlement, []models.PointsLedgerEntry, error)
	// PointsByManager sums the ledger per manager for standings.
	PointsByManager(ctx context.Context, leagueID uuid.UUID) (map[uuid.UUID]int64, error)
}

// AuditStore is the append-only record of committed mutations.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	ListByLeague(ctx context.Context, leagueID uuid.UUID, limit int) ([]models.AuditEntry, error)
}

// OutboxRow is a journaled event awaiting relay to the bus.
type OutboxRow struct {
	Event  events.Event
	SentAt *time.Time
}

// OutboxStore journals committed events for the relay.
type OutboxStore interface {
	Insert(ctx context.Context, event events.Event) error
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxRow, error)
	FetchUnsent(ctx context.Context, limit int) ([]OutboxRow, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
}
