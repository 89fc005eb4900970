package models

import (
	"time"

	"github.com/google/uuid"
)

// RejectReason is the stable machine-readable code returned when a bid is
// turned down. Callers are never auto-retried; they resubmit.
type RejectReason string

const (
	RejectLotNotOpen       RejectReason = "lot_not_open"
	RejectBidTooLow        RejectReason = "bid_too_low"
	RejectInsufficientBudg RejectReason = "insufficient_budget"
	RejectNoSlotsRemaining RejectReason = "no_slots_remaining"
	RejectWouldStrandSlots RejectReason = "would_strand_remaining_slots"
	RejectDuplicateOwner   RejectReason = "duplicate_ownership"
	RejectAuctionPaused    RejectReason = "auction_paused"
	RejectSuperseded       RejectReason = "superseded"
)

// Bid records one submission against a lot, accepted or not.
type Bid struct {
	ID           uuid.UUID    `json:"id"`
	LotID        uuid.UUID    `json:"lot_id"`
	ManagerID    uuid.UUID    `json:"manager_id"`
	Amount       int64        `json:"amount"`
	PlacedAt     time.Time    `json:"placed_at"`
	Accepted     bool         `json:"accepted"`
	RejectReason RejectReason `json:"reject_reason,omitempty"`
}
