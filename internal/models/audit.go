package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one row in the append-only record of committed mutations.
type AuditEntry struct {
	ID        uuid.UUID       `json:"id"`
	LeagueID  uuid.UUID       `json:"league_id"`
	AuctionID *uuid.UUID      `json:"auction_id,omitempty"`
	Action    string          `json:"action"`
	ActorID   *uuid.UUID      `json:"actor_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
