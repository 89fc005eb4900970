package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
)

// LotOpenedPayload announces a freshly nominated lot.
type LotOpenedPayload struct {
	LotID      uuid.UUID `json:"lot_id"`
	AssetRef   string    `json:"asset_ref"`
	OpensAt    time.Time `json:"opens_at"`
	DeadlineAt time.Time `json:"deadline_at"`
}

// BidAcceptedPayload is the minimal delta for an accepted bid, including the
// post-extension deadline so clients re-arm their countdowns.
type BidAcceptedPayload struct {
	LotID          uuid.UUID `json:"lot_id"`
	BidID          uuid.UUID `json:"bid_id"`
	ManagerID      uuid.UUID `json:"manager_id"`
	Amount         int64     `json:"amount"`
	DeadlineAt     time.Time `json:"deadline_at"`
	ExtensionCount int       `json:"extension_count"`
}

// BidRejectedPayload carries the authoritative lot state alongside the
// rejection so the losing client reconciles without a full reload.
type BidRejectedPayload struct {
	LotID      uuid.UUID           `json:"lot_id"`
	ManagerID  uuid.UUID           `json:"manager_id"`
	Amount     int64               `json:"amount"`
	Reason     models.RejectReason `json:"reason"`
	TopBid     int64               `json:"top_bid"`
	TopBidder  *uuid.UUID          `json:"top_bidder,omitempty"`
	DeadlineAt *time.Time          `json:"deadline_at,omitempty"`
}

// LotSoldPayload announces a finalized sale.
type LotSoldPayload struct {
	LotID     uuid.UUID `json:"lot_id"`
	AssetRef  string    `json:"asset_ref"`
	ManagerID uuid.UUID `json:"manager_id"`
	Price     int64     `json:"price"`
}

// LotUnsoldPayload announces a lot that closed with zero bids.
type LotUnsoldPayload struct {
	LotID    uuid.UUID `json:"lot_id"`
	AssetRef string    `json:"asset_ref"`
}

// AuctionStatusPayload accompanies auction_started/paused/resumed/completed.
type AuctionStatusPayload struct {
	Status       models.AuctionStatus `json:"status"`
	RemainingSec *int64               `json:"remaining_sec,omitempty"`
	DeadlineAt   *time.Time           `json:"deadline_at,omitempty"`
}

// SettlementAppliedPayload summarizes an applied match result.
type SettlementAppliedPayload struct {
	MatchID string            `json:"match_id"`
	Deltas  []SettlementDelta `json:"deltas"`
}

// SettlementDelta is one manager's point change from a settlement.
type SettlementDelta struct {
	ManagerID   uuid.UUID `json:"manager_id"`
	PointsDelta int64     `json:"points_delta"`
	Reason      string    `json:"reason"`
}
