package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the status of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusLive      AuctionStatus = "LIVE"
	AuctionStatusPaused    AuctionStatus = "PAUSED"
	AuctionStatusCompleted AuctionStatus = "COMPLETED"
)

// auctionTransitions lists every legal status transition. Anything not in
// this table is rejected.
var auctionTransitions = map[AuctionStatus][]AuctionStatus{
	AuctionStatusScheduled: {AuctionStatusLive},
	AuctionStatusLive:      {AuctionStatusPaused, AuctionStatusCompleted},
	AuctionStatusPaused:    {AuctionStatusLive, AuctionStatusCompleted},
}

// CanTransitionTo reports whether the status may move to next.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	for _, allowed := range auctionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Auction represents one league auction.
type Auction struct {
	ID          uuid.UUID     `json:"id"`
	LeagueID    uuid.UUID     `json:"league_id"`
	Status      AuctionStatus `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
