package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/audit"
	"github.com/openleague/auctioneer/internal/clock"
	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// SubmitBidRequest is one bid submission entering the arbitrator.
// ObservedTop, if set, is the top bid the client saw when submitting; it
// only affects the reject reason (superseded vs bid_too_low).
type SubmitBidRequest struct {
	LotID       uuid.UUID `json:"lot_id"`
	ManagerID   uuid.UUID `json:"manager_id"`
	Amount      int64     `json:"amount"`
	ObservedTop *int64    `json:"observed_top,omitempty"`
}

// Session owns one league auction: the open lot, the nomination pool and the
// per-auction critical section that serializes bid submissions, timer fires
// and lifecycle commands. A session runs at most one open lot at a time, so
// the session mutex is the per-lot serialization point; other auctions run
// in other sessions and are unaffected.
type Session struct {
	auctionID uuid.UUID
	leagueID  uuid.UUID
	settings  models.LeagueSettings

	store     storage.AuctionStore
	roster    storage.RosterStore
	recorder  *audit.Recorder
	publisher events.Publisher
	sched     *clock.Scheduler
	lifecycle *Lifecycle
	arb       *Arbitrator

	mu              sync.Mutex
	auction         *models.Auction
	lot             *models.Lot
	pool            map[string]bool
	pausedRemaining time.Duration
	halted          bool
}

// SessionConfig carries the collaborators a session needs.
type SessionConfig struct {
	Clock     clock.Clock
	Store     storage.AuctionStore
	Roster    storage.RosterStore
	Recorder  *audit.Recorder
	Publisher events.Publisher
	Settings  models.LeagueSettings
}

// newSession wires a session around an existing auction row.
func newSession(cfg SessionConfig, auction *models.Auction) *Session {
	s := &Session{
		auctionID: auction.ID,
		leagueID:  auction.LeagueID,
		settings:  cfg.Settings,
		store:     cfg.Store,
		roster:    cfg.Roster,
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		lifecycle: NewLifecycle(cfg.Settings),
		arb:       NewArbitrator(cfg.Settings),
		auction:   auction,
		pool:      make(map[string]bool),
	}
	s.sched = clock.NewScheduler(cfg.Clock, s.handleDeadlineFire)
	return s
}

// restore rebuilds the nomination pool and re-arms the open lot's deadline
// from persisted state. Called once before the session serves traffic.
func (s *Session) restore(ctx context.Context) error {
	owned := make(map[string]bool)
	entries, err := s.roster.ListByLeague(ctx, s.leagueID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	for _, e := range entries {
		owned[e.AssetRef] = true
	}

	for _, asset := range s.settings.NominationAssets {
		if !owned[asset] {
			s.pool[asset] = true
		}
	}

	lot, err := s.store.GetOpenLot(ctx, s.auctionID)
	switch {
	case err == nil:
		s.lot = lot
		delete(s.pool, lot.AssetRef)
		if lot.Status == models.LotStatusOpen && lot.DeadlineAt != nil {
			if s.auction.Status == models.AuctionStatusLive {
				s.sched.ScheduleAt(lot.ID, *lot.DeadlineAt)
			} else if s.auction.Status == models.AuctionStatusPaused {
				s.pausedRemaining = s.lifecycle.PauseRemaining(lot, s.sched.Now())
			}
		}
	case errors.Is(err, storage.ErrNotFound):
		// nothing on the block
	default:
		return fmt.Errorf("load open lot: %w", err)
	}
	return nil
}

// AuctionID returns the session's auction ID.
func (s *Session) AuctionID() uuid.UUID { return s.auctionID }

// LeagueID returns the session's league ID.
func (s *Session) LeagueID() uuid.UUID { return s.leagueID }

// Settings returns the league settings in effect for this session.
func (s *Session) Settings() models.LeagueSettings { return s.settings }

// Start moves the auction scheduled -> live.
func (s *Session) Start(ctx context.Context, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ErrSessionHalted
	}
	if !s.auction.Status.CanTransitionTo(models.AuctionStatusLive) || s.auction.Status != models.AuctionStatusScheduled {
		return transitionError("auction", string(s.auction.Status), string(models.AuctionStatusLive))
	}

	now := s.sched.Now()
	s.auction.Status = models.AuctionStatusLive
	started := now
	s.auction.StartedAt = &started
	s.auction.UpdatedAt = now
	if err := s.store.UpdateAuction(ctx, s.auction); err != nil {
		return fmt.Errorf("persist auction start: %w", err)
	}

	s.record(ctx, actorID, audit.ActionAuctionStarted, nil)
	s.emit(ctx, events.TypeAuctionStarted, events.AuctionStatusPayload{Status: s.auction.Status}, now)
	return nil
}

// Pause moves the auction live -> paused, cancels the lot timer and
// remembers the remaining duration. While paused every bid is rejected with
// auction_paused.
func (s *Session) Pause(ctx context.Context, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ErrSessionHalted
	}
	if !s.auction.Status.CanTransitionTo(models.AuctionStatusPaused) {
		return transitionError("auction", string(s.auction.Status), string(models.AuctionStatusPaused))
	}

	now := s.sched.Now()
	if s.lot != nil && s.lot.Status == models.LotStatusOpen {
		s.pausedRemaining = s.lifecycle.PauseRemaining(s.lot, now)
		s.sched.Cancel(s.lot.ID)
	}

	s.auction.Status = models.AuctionStatusPaused
	s.auction.UpdatedAt = now
	if err := s.store.UpdateAuction(ctx, s.auction); err != nil {
		return fmt.Errorf("persist auction pause: %w", err)
	}

	remaining := int64(s.pausedRemaining / time.Second)
	s.record(ctx, actorID, audit.ActionAuctionPaused, map[string]int64{"remaining_sec": remaining})
	s.emit(ctx, events.TypeAuctionPaused, events.AuctionStatusPayload{
		Status:       s.auction.Status,
		RemainingSec: &remaining,
	}, now)
	return nil
}

// Resume moves the auction paused -> live and recomputes a fresh deadline
// from the remembered remaining duration.
func (s *Session) Resume(ctx context.Context, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ErrSessionHalted
	}
	if s.auction.Status != models.AuctionStatusPaused {
		return transitionError("auction", string(s.auction.Status), string(models.AuctionStatusLive))
	}

	now := s.sched.Now()
	s.auction.Status = models.AuctionStatusLive
	s.auction.UpdatedAt = now

	var deadline *time.Time
	if s.lot != nil && s.lot.Status == models.LotStatusOpen {
		s.lifecycle.Resume(s.lot, now, s.pausedRemaining)
		if err := s.store.UpdateLot(ctx, s.lot); err != nil {
			return fmt.Errorf("persist resumed lot: %w", err)
		}
		s.sched.ScheduleAt(s.lot.ID, *s.lot.DeadlineAt)
		deadline = s.lot.DeadlineAt
		s.pausedRemaining = 0
	}

	if err := s.store.UpdateAuction(ctx, s.auction); err != nil {
		return fmt.Errorf("persist auction resume: %w", err)
	}

	s.record(ctx, actorID, audit.ActionAuctionResumed, nil)
	s.emit(ctx, events.TypeAuctionResumed, events.AuctionStatusPayload{
		Status:     s.auction.Status,
		DeadlineAt: deadline,
	}, now)
	return nil
}

// Complete closes the auction. A lot still on the block must resolve first.
func (s *Session) Complete(ctx context.Context, actorID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return ErrSessionHalted
	}
	if !s.auction.Status.CanTransitionTo(models.AuctionStatusCompleted) {
		return transitionError("auction", string(s.auction.Status), string(models.AuctionStatusCompleted))
	}
	if s.lot != nil && !s.lot.Status.Terminal() {
		return ErrLotOnBlock
	}

	now := s.sched.Now()
	s.auction.Status = models.AuctionStatusCompleted
	completed := now
	s.auction.CompletedAt = &completed
	s.auction.UpdatedAt = now
	if err := s.store.UpdateAuction(ctx, s.auction); err != nil {
		return fmt.Errorf("persist auction complete: %w", err)
	}
	s.sched.CancelAll()

	s.record(ctx, actorID, audit.ActionAuctionCompleted, nil)
	s.emit(ctx, events.TypeAuctionCompleted, events.AuctionStatusPayload{Status: s.auction.Status}, now)
	return nil
}

// Nominate puts an asset from the nomination pool on the block. The lot is
// created pending and opened immediately with a fresh bid timer.
func (s *Session) Nominate(ctx context.Context, actorID uuid.UUID, assetRef string) (*models.Lot, error) {
	if assetRef == "" {
		return nil, &ValidationError{Field: "asset_ref", Reason: "must not be empty"}
	}
	if !s.isMember(actorID) {
		return nil, ErrUnknownManager
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return nil, ErrSessionHalted
	}
	if s.auction.Status != models.AuctionStatusLive {
		return nil, ErrAuctionNotLive
	}
	if s.lot != nil && !s.lot.Status.Terminal() {
		return nil, ErrLotOnBlock
	}
	if !s.pool[assetRef] {
		return nil, ErrAssetUnavailable
	}

	now := s.sched.Now()
	lot := s.lifecycle.NewLot(s.auctionID, assetRef)
	if err := s.lifecycle.Open(lot, now); err != nil {
		return nil, err
	}
	if err := s.store.CreateLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("persist lot: %w", err)
	}

	s.lot = lot
	delete(s.pool, assetRef)
	s.sched.ScheduleAt(lot.ID, *lot.DeadlineAt)

	s.record(ctx, &actorID, audit.ActionLotOpened, events.LotOpenedPayload{
		LotID:      lot.ID,
		AssetRef:   lot.AssetRef,
		OpensAt:    *lot.OpensAt,
		DeadlineAt: *lot.DeadlineAt,
	})
	s.emit(ctx, events.TypeLotOpened, events.LotOpenedPayload{
		LotID:      lot.ID,
		AssetRef:   lot.AssetRef,
		OpensAt:    *lot.OpensAt,
		DeadlineAt: *lot.DeadlineAt,
	}, now)

	return lot.Clone(), nil
}

// SubmitBid arbitrates one bid under the session critical section. The
// returned outcome is authoritative: rejections carry the current lot state
// and a stable reason code.
func (s *Session) SubmitBid(ctx context.Context, req SubmitBidRequest) (*BidOutcome, error) {
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !s.isMember(req.ManagerID) {
		return nil, ErrUnknownManager
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return nil, ErrSessionHalted
	}

	now := s.sched.Now()

	if s.auction.Status == models.AuctionStatusPaused {
		return s.reject(ctx, req, models.RejectAuctionPaused, now), nil
	}
	if s.auction.Status != models.AuctionStatusLive || s.lot == nil || s.lot.ID != req.LotID {
		return s.reject(ctx, req, models.RejectLotNotOpen, now), nil
	}

	entries, err := s.roster.ListByLeague(ctx, s.leagueID)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	standing := BuildStanding(s.settings, req.ManagerID, entries)

	reason, ok := s.arb.Validate(s.lot, standing, req.Amount, req.ObservedTop)
	if !ok {
		return s.reject(ctx, req, reason, now), nil
	}

	prev := s.lot.Clone()
	extended, err := s.lifecycle.RegisterBid(s.lot, req.ManagerID, req.Amount, now)
	if err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:        uuid.New(),
		LotID:     s.lot.ID,
		ManagerID: req.ManagerID,
		Amount:    req.Amount,
		PlacedAt:  now,
		Accepted:  true,
	}
	if err := s.store.InsertBid(ctx, bid); err != nil {
		s.lot = prev
		return nil, fmt.Errorf("persist bid: %w", err)
	}
	if err := s.store.UpdateLot(ctx, s.lot); err != nil {
		s.lot = prev
		return nil, fmt.Errorf("persist lot: %w", err)
	}

	if extended {
		s.sched.ScheduleAt(s.lot.ID, *s.lot.DeadlineAt)
	}

	payload := events.BidAcceptedPayload{
		LotID:          s.lot.ID,
		BidID:          bid.ID,
		ManagerID:      bid.ManagerID,
		Amount:         bid.Amount,
		DeadlineAt:     *s.lot.DeadlineAt,
		ExtensionCount: s.lot.ExtensionCount,
	}
	s.record(ctx, &req.ManagerID, audit.ActionBidAccepted, payload)
	s.emit(ctx, events.TypeBidAccepted, payload, now)

	return &BidOutcome{Accepted: true, Bid: bid, Lot: s.lot.Clone()}, nil
}

// reject persists the rejected bid when a lot exists, broadcasts the
// rejection delta and builds the outcome. Caller holds the lock.
func (s *Session) reject(ctx context.Context, req SubmitBidRequest, reason models.RejectReason, now time.Time) *BidOutcome {
	outcome := &BidOutcome{Reason: reason}

	if s.lot != nil {
		outcome.Lot = s.lot.Clone()

		// The history row names the lot the client targeted, which differs
		// from the open lot when the rejection is lot_not_open.
		bid := &models.Bid{
			ID:           uuid.New(),
			LotID:        req.LotID,
			ManagerID:    req.ManagerID,
			Amount:       req.Amount,
			PlacedAt:     now,
			Accepted:     false,
			RejectReason: reason,
		}
		if err := s.store.InsertBid(ctx, bid); err != nil {
			log.Error().Err(err).Str("lot_id", req.LotID.String()).Msg("failed to persist rejected bid")
		}
		outcome.Bid = bid

		s.emit(ctx, events.TypeBidRejected, events.BidRejectedPayload{
			LotID:      req.LotID,
			ManagerID:  req.ManagerID,
			Amount:     req.Amount,
			Reason:     reason,
			TopBid:     s.lot.TopBid,
			TopBidder:  outcome.Lot.TopBidder,
			DeadlineAt: outcome.Lot.DeadlineAt,
		}, now)
	}
	return outcome
}

// handleDeadlineFire is the scheduler callback. It re-validates the
// authoritative deadline under the session lock so a stale timer (one
// superseded by an anti-snipe extension or a pause) is a no-op, then closes
// and finalizes the lot.
func (s *Session) handleDeadlineFire(lotID uuid.UUID, _ time.Time) {
	ctx := context.Background()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return
	}
	if s.auction.Status != models.AuctionStatusLive {
		return
	}
	if s.lot == nil || s.lot.ID != lotID || s.lot.Status != models.LotStatusOpen {
		return
	}

	now := s.sched.Now()
	if s.lot.DeadlineAt != nil && s.lot.DeadlineAt.After(now) {
		// Deadline moved since this timer was armed; the scheduler holds a
		// fresh one.
		return
	}

	if err := s.finalizeLot(ctx, now); err != nil {
		log.Error().Err(err).
			Str("auction_id", s.auctionID.String()).
			Str("lot_id", lotID.String()).
			Msg("lot finalization failed; session halted")
		s.halted = true
	}
}

// finalizeLot runs closing -> sold/unsold. Caller holds the lock. A sold lot
// debits the winner's budget by creating the roster entry; the storage-level
// (league_id, asset_ref) uniqueness constraint backs the ownership
// invariant, and a violation there is fatal for the session.
func (s *Session) finalizeLot(ctx context.Context, now time.Time) error {
	lot := s.lot
	if err := s.lifecycle.Close(lot); err != nil {
		return err
	}

	sold, err := s.lifecycle.Finalize(lot)
	if err != nil {
		return err
	}

	if sold {
		entry := &models.RosterEntry{
			ID:         uuid.New(),
			LeagueID:   s.leagueID,
			ManagerID:  *lot.TopBidder,
			AssetRef:   lot.AssetRef,
			PricePaid:  lot.TopBid,
			AcquiredAt: now,
		}
		if err := s.roster.CreateEntry(ctx, entry); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("ownership invariant violated for asset %s: %w", lot.AssetRef, err)
			}
			return fmt.Errorf("persist roster entry: %w", err)
		}
	}

	if err := s.store.UpdateLot(ctx, lot); err != nil {
		return fmt.Errorf("persist finalized lot: %w", err)
	}

	if sold {
		payload := events.LotSoldPayload{
			LotID:     lot.ID,
			AssetRef:  lot.AssetRef,
			ManagerID: *lot.TopBidder,
			Price:     lot.TopBid,
		}
		s.record(ctx, lot.TopBidder, audit.ActionLotSold, payload)
		s.emit(ctx, events.TypeLotSold, payload, now)
	} else {
		// Zero bids: the asset returns to the nomination pool untouched.
		s.pool[lot.AssetRef] = true
		payload := events.LotUnsoldPayload{LotID: lot.ID, AssetRef: lot.AssetRef}
		s.record(ctx, nil, audit.ActionLotUnsold, payload)
		s.emit(ctx, events.TypeLotUnsold, payload, now)
	}

	s.lot = nil
	return nil
}

// Halted reports whether a fatal invariant violation stopped the session.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Session) isMember(managerID uuid.UUID) bool {
	for _, id := range s.settings.ManagerIDs {
		if id == managerID {
			return true
		}
	}
	return false
}

func (s *Session) record(ctx context.Context, actorID *uuid.UUID, action string, detail any) {
	if s.recorder == nil {
		return
	}
	auctionID := s.auctionID
	if err := s.recorder.Record(ctx, s.leagueID, &auctionID, actorID, action, detail); err != nil {
		log.Error().Err(err).Str("action", action).Msg("audit record failed")
	}
}

func (s *Session) emit(ctx context.Context, t events.Type, payload any, occurredAt time.Time) {
	if s.publisher == nil {
		return
	}
	evt, err := events.New(t, s.leagueID, s.auctionID, occurredAt, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to build event")
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to publish event")
	}
}

// poolAssets returns the nomination pool, sorted. Caller holds the lock.
func (s *Session) poolAssets() []string {
	out := make([]string, 0, len(s.pool))
	for asset := range s.pool {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}
