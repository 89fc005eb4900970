package auction

import (
	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
)

// Arbitrator validates bid submissions against current lot state and the
// bidding manager's budget/slot standing. It is pure: the session owns the
// critical section and the mutations.
type Arbitrator struct {
	settings models.LeagueSettings
}

// NewArbitrator creates an arbitrator for a league's settings.
func NewArbitrator(settings models.LeagueSettings) *Arbitrator {
	return &Arbitrator{settings: settings}
}

// Validate runs the ordered checks; the first failure wins. observedTop, if
// non-nil, is the top bid the client saw when submitting and upgrades a
// too-low rejection to superseded when the top has moved past it since.
func (a *Arbitrator) Validate(lot *models.Lot, standing *models.ManagerStanding, amount int64, observedTop *int64) (models.RejectReason, bool) {
	// 1. Lot must be open.
	if lot == nil || lot.Status != models.LotStatusOpen {
		return models.RejectLotNotOpen, false
	}

	// 2. Strict ascending increment. Equal-amount races cannot both pass,
	// so no tie-break is needed; the loser observes the new top.
	if amount < lot.TopBid+a.settings.MinIncrement {
		if observedTop != nil && *observedTop < lot.TopBid {
			return models.RejectSuperseded, false
		}
		return models.RejectBidTooLow, false
	}

	// 3. Budget.
	if amount > standing.BudgetRemaining {
		return models.RejectInsufficientBudg, false
	}

	// 4. A slot must be free.
	if standing.SlotsRemaining <= 0 {
		return models.RejectNoSlotsRemaining, false
	}

	// 5. Reserve invariant: after this bid the manager must still be able
	// to fill every other open slot at the minimum increment.
	reserve := int64(standing.SlotsRemaining-1) * a.settings.MinIncrement
	if standing.BudgetRemaining-amount < reserve {
		return models.RejectWouldStrandSlots, false
	}

	// 6. One club per league, ever.
	if standing.Owns(lot.AssetRef) {
		return models.RejectDuplicateOwner, false
	}

	return "", true
}

// BuildStanding derives a manager's budget/slot position from the league
// roster under the league settings.
func BuildStanding(settings models.LeagueSettings, managerID uuid.UUID, entries []models.RosterEntry) *models.ManagerStanding {
	standing := &models.ManagerStanding{
		ManagerID:       managerID,
		BudgetRemaining: settings.BudgetPerManager,
		SlotsRemaining:  settings.ClubSlotsPerMgr,
	}
	for _, e := range entries {
		if e.ManagerID != managerID {
			continue
		}
		standing.BudgetSpent += e.PricePaid
		standing.SlotsUsed++
		standing.OwnedAssets = append(standing.OwnedAssets, e.AssetRef)
	}
	standing.BudgetRemaining = settings.BudgetPerManager - standing.BudgetSpent
	standing.SlotsRemaining = settings.ClubSlotsPerMgr - standing.SlotsUsed
	return standing
}
