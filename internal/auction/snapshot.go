package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
)

// LotView is the open lot as shown to clients, with a server-computed
// countdown so clients never trust their own clocks.
type LotView struct {
	Lot          *models.Lot  `json:"lot"`
	RemainingSec int64        `json:"remaining_sec"`
	Bids         []models.Bid `json:"bids"`
}

// Snapshot is the full authoritative state a client needs on connect.
// Deltas broadcast afterwards build on top of it.
type Snapshot struct {
	AuctionID          uuid.UUID                `json:"auction_id"`
	LeagueID           uuid.UUID                `json:"league_id"`
	Status             models.AuctionStatus     `json:"status"`
	Lot                *LotView                 `json:"lot,omitempty"`
	Managers           []models.ManagerStanding `json:"managers"`
	NominationPool     []string                 `json:"nomination_pool"`
	PausedRemainingSec *int64                   `json:"paused_remaining_sec,omitempty"`
	TakenAt            time.Time                `json:"taken_at"`
}

// Snapshot captures the session state under the critical section, so it is
// consistent with respect to concurrent bids and timer fires.
func (s *Session) Snapshot(ctx context.Context) (*Snapshot, error) {
	entries, err := s.roster.ListByLeague(ctx, s.leagueID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.sched.Now()
	snap := &Snapshot{
		AuctionID:      s.auctionID,
		LeagueID:       s.leagueID,
		Status:         s.auction.Status,
		NominationPool: s.poolAssets(),
		TakenAt:        now,
	}

	for _, managerID := range s.settings.ManagerIDs {
		snap.Managers = append(snap.Managers, *BuildStanding(s.settings, managerID, entries))
	}

	if s.lot != nil && !s.lot.Status.Terminal() {
		view := &LotView{Lot: s.lot.Clone()}
		if s.auction.Status == models.AuctionStatusPaused {
			view.RemainingSec = int64(s.pausedRemaining / time.Second)
			snap.PausedRemainingSec = &view.RemainingSec
		} else if s.lot.DeadlineAt != nil {
			remaining := s.lot.DeadlineAt.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			view.RemainingSec = int64(remaining / time.Second)
		}
		bids, err := s.store.ListBids(ctx, s.lot.ID)
		if err != nil {
			return nil, fmt.Errorf("load bids: %w", err)
		}
		view.Bids = bids
		snap.Lot = view
	}

	return snap, nil
}
