package models

import (
	"time"

	"github.com/google/uuid"
)

// RosterEntry marks a manager's ownership of one club in a league.
// Unique on (league_id, asset_ref) across all managers.
type RosterEntry struct {
	ID         uuid.UUID `json:"id"`
	LeagueID   uuid.UUID `json:"league_id"`
	ManagerID  uuid.UUID `json:"manager_id"`
	AssetRef   string    `json:"asset_ref"`
	PricePaid  int64     `json:"price_paid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ManagerStanding is a manager's derived budget/slot position, computed from
// roster entries against the league settings.
type ManagerStanding struct {
	ManagerID       uuid.UUID `json:"manager_id"`
	BudgetSpent     int64     `json:"budget_spent"`
	BudgetRemaining int64     `json:"budget_remaining"`
	SlotsUsed       int       `json:"slots_used"`
	SlotsRemaining  int       `json:"slots_remaining"`
	OwnedAssets     []string  `json:"owned_assets"`
}

// Owns reports whether the standing already includes the asset.
func (m *ManagerStanding) Owns(assetRef string) bool {
	for _, a := range m.OwnedAssets {
		if a == assetRef {
			return true
		}
	}
	return false
}
