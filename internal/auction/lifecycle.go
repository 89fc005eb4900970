package auction

import (
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
)

// Lifecycle drives a single lot through
// pending -> open -> closing -> sold/unsold. It owns deadline computation
// and the anti-snipe extension rule; callers provide "now" so the logic is
// deterministic under a fake clock. Lifecycle itself holds no locks -- the
// session serializes every call per lot.
type Lifecycle struct {
	bidTimer  time.Duration
	antiSnipe time.Duration
}

// NewLifecycle creates a controller from the league's timer settings.
func NewLifecycle(settings models.LeagueSettings) *Lifecycle {
	return &Lifecycle{
		bidTimer:  time.Duration(settings.BidTimerSec) * time.Second,
		antiSnipe: time.Duration(settings.AntiSnipeSec) * time.Second,
	}
}

// NewLot creates a pending lot for a nominated asset.
func (lc *Lifecycle) NewLot(auctionID uuid.UUID, assetRef string) *models.Lot {
	return &models.Lot{
		ID:        uuid.New(),
		AuctionID: auctionID,
		AssetRef:  assetRef,
		Status:    models.LotStatusPending,
	}
}

// Open transitions pending -> open and computes the initial deadline.
func (lc *Lifecycle) Open(lot *models.Lot, now time.Time) error {
	if !lot.Status.CanTransitionTo(models.LotStatusOpen) || lot.Status != models.LotStatusPending {
		return transitionError("lot", string(lot.Status), string(models.LotStatusOpen))
	}
	opens := now
	deadline := now.Add(lc.bidTimer)
	lot.Status = models.LotStatusOpen
	lot.OpensAt = &opens
	lot.DeadlineAt = &deadline
	return nil
}

// RegisterBid applies an already-validated winning bid: open -> open, new
// top, and the anti-snipe rule. If the bid lands with
// deadline-now <= antiSnipe, the deadline becomes
// max(deadline, now+antiSnipe); the deadline never decreases. Returns true
// when the deadline was extended.
func (lc *Lifecycle) RegisterBid(lot *models.Lot, managerID uuid.UUID, amount int64, now time.Time) (bool, error) {
	if lot.Status != models.LotStatusOpen {
		return false, transitionError("lot", string(lot.Status), string(models.LotStatusOpen))
	}

	lot.TopBid = amount
	bidder := managerID
	lot.TopBidder = &bidder

	deadline := *lot.DeadlineAt
	if deadline.Sub(now) <= lc.antiSnipe {
		candidate := now.Add(lc.antiSnipe)
		if candidate.After(deadline) {
			lot.DeadlineAt = &candidate
		}
		lot.ExtensionCount++
		return true, nil
	}
	return false, nil
}

// Close transitions open -> closing when the deadline elapsed. The caller
// guards this with the same critical section as bids so a winning late bid
// cannot race the timer.
func (lc *Lifecycle) Close(lot *models.Lot) error {
	if !lot.Status.CanTransitionTo(models.LotStatusClosing) {
		return transitionError("lot", string(lot.Status), string(models.LotStatusClosing))
	}
	lot.Status = models.LotStatusClosing
	return nil
}

// Finalize transitions closing -> sold when a top bid exists, else
// closing -> unsold. Returns true for sold.
func (lc *Lifecycle) Finalize(lot *models.Lot) (bool, error) {
	if lot.Status != models.LotStatusClosing {
		return false, transitionError("lot", string(lot.Status), string(models.LotStatusSold))
	}
	if lot.HasBid() {
		lot.Status = models.LotStatusSold
		return true, nil
	}
	lot.Status = models.LotStatusUnsold
	return false, nil
}

// PauseRemaining reports the time left on an open lot's clock.
func (lc *Lifecycle) PauseRemaining(lot *models.Lot, now time.Time) time.Duration {
	if lot == nil || lot.Status != models.LotStatusOpen || lot.DeadlineAt == nil {
		return 0
	}
	remaining := lot.DeadlineAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Resume re-arms an open lot's deadline from the remembered remaining
// duration.
func (lc *Lifecycle) Resume(lot *models.Lot, now time.Time, remaining time.Duration) {
	if lot == nil || lot.Status != models.LotStatusOpen {
		return
	}
	deadline := now.Add(remaining)
	lot.DeadlineAt = &deadline
}
