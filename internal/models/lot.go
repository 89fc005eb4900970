package models

import (
	"time"

	"github.com/google/uuid"
)

// LotStatus defines the status of a lot.
type LotStatus string

const (
	LotStatusPending LotStatus = "PENDING"
	LotStatusOpen    LotStatus = "OPEN"
	LotStatusClosing LotStatus = "CLOSING"
	LotStatusSold    LotStatus = "SOLD"
	LotStatusUnsold  LotStatus = "UNSOLD"
)

// lotTransitions lists every legal lot status transition. AcceptBid is the
// OPEN -> OPEN self-transition.
var lotTransitions = map[LotStatus][]LotStatus{
	LotStatusPending: {LotStatusOpen},
	LotStatusOpen:    {LotStatusOpen, LotStatusClosing},
	LotStatusClosing: {LotStatusSold, LotStatusUnsold},
}

// CanTransitionTo reports whether the status may move to next.
func (s LotStatus) CanTransitionTo(next LotStatus) bool {
	for _, allowed := range lotTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the lot has finished its lifecycle.
func (s LotStatus) Terminal() bool {
	return s == LotStatusSold || s == LotStatusUnsold
}

// Lot is a single auctionable asset being bid on within an auction.
type Lot struct {
	ID             uuid.UUID  `json:"id"`
	AuctionID      uuid.UUID  `json:"auction_id"`
	AssetRef       string     `json:"asset_ref"`
	Status         LotStatus  `json:"status"`
	TopBid         int64      `json:"top_bid"`
	TopBidder      *uuid.UUID `json:"top_bidder,omitempty"`
	OpensAt        *time.Time `json:"opens_at,omitempty"`
	DeadlineAt     *time.Time `json:"deadline_at,omitempty"`
	ExtensionCount int        `json:"extension_count"`
}

// HasBid reports whether any bid has been accepted on the lot.
func (l *Lot) HasBid() bool {
	return l.TopBidder != nil
}

// Clone returns a copy safe to hand out while the lot keeps mutating under
// the session lock.
func (l *Lot) Clone() *Lot {
	c := *l
	if l.TopBidder != nil {
		b := *l.TopBidder
		c.TopBidder = &b
	}
	if l.OpensAt != nil {
		t := *l.OpensAt
		c.OpensAt = &t
	}
	if l.DeadlineAt != nil {
		t := *l.DeadlineAt
		c.DeadlineAt = &t
	}
	return &c
}
