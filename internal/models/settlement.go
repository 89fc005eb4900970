package models

import (
	"time"

	"github.com/google/uuid"
)

// Settlement is the durable record marking a match's scoring as applied.
// Unique on (league_id, match_id) -- the idempotency guard.
type Settlement struct {
	ID        uuid.UUID `json:"id"`
	LeagueID  uuid.UUID `json:"league_id"`
	MatchID   string    `json:"match_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// PointsLedgerEntry is one point delta applied to a manager for a match.
type PointsLedgerEntry struct {
	ID          uuid.UUID `json:"id"`
	LeagueID    uuid.UUID `json:"league_id"`
	ManagerID   uuid.UUID `json:"manager_id"`
	MatchID     string    `json:"match_id"`
	PointsDelta int64     `json:"points_delta"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}
