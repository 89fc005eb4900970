package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/openleague/auctioneer/internal/audit"
	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
	"github.com/openleague/auctioneer/internal/storage/memory"
)

// eventSink collects published events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) Publish(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *eventSink) countOf(t events.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clk      *clockwork.FakeClock
	store    *memory.AuctionStore
	roster   *memory.RosterStore
	sink     *eventSink
	manager  *Manager
	session  *Session
	settings models.LeagueSettings

	alice, bob, cara uuid.UUID
}

func newFixture(t *testing.T, mutate func(*models.LeagueSettings)) *fixture {
	t.Helper()

	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		clk:   clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 19, 0, 0, 0, time.UTC)),
		alice: uuid.New(),
		bob:   uuid.New(),
		cara:  uuid.New(),
	}

	f.settings = testSettings()
	f.settings.ManagerIDs = []uuid.UUID{f.alice, f.bob, f.cara}
	f.settings.NominationAssets = []string{"club:arsenal", "club:chelsea", "club:spurs", "club:villa"}
	if mutate != nil {
		mutate(&f.settings)
	}

	f.store = memory.NewAuctionStore()
	f.roster = memory.NewRosterStore()
	f.sink = &eventSink{}

	f.manager = NewManager(ManagerConfig{
		Clock:     f.clk,
		Store:     f.store,
		Roster:    f.roster,
		Recorder:  audit.NewRecorder(memory.NewAuditStore()),
		Publisher: f.sink,
		Settings: SettingsProviderFunc(func(context.Context, uuid.UUID) (models.LeagueSettings, error) {
			return f.settings, nil
		}),
	})

	session, err := f.manager.CreateAuction(f.ctx, f.settings.LeagueID)
	require.NoError(t, err)
	f.session = session
	return f
}

func (f *fixture) start() {
	f.t.Helper()
	require.NoError(f.t, f.session.Start(f.ctx, nil))
}

func (f *fixture) nominate(asset string) *models.Lot {
	f.t.Helper()
	lot, err := f.session.Nominate(f.ctx, f.alice, asset)
	require.NoError(f.t, err)
	return lot
}

func (f *fixture) bid(managerID uuid.UUID, lotID uuid.UUID, amount int64) *BidOutcome {
	f.t.Helper()
	outcome, err := f.session.SubmitBid(f.ctx, SubmitBidRequest{
		LotID:     lotID,
		ManagerID: managerID,
		Amount:    amount,
	})
	require.NoError(f.t, err)
	return outcome
}

// fire drives the deadline handler directly so tests do not depend on how the
// fake clock delivers timer callbacks. A second delivery from the scheduler
// is a stale no-op.
func (f *fixture) fire(lotID uuid.UUID) {
	f.session.handleDeadlineFire(lotID, f.clk.Now())
}

func (f *fixture) snapshot() *Snapshot {
	f.t.Helper()
	snap, err := f.session.Snapshot(f.ctx)
	require.NoError(f.t, err)
	return snap
}

func TestAuctionLifecycleTransitions(t *testing.T) {
	f := newFixture(t, nil)

	require.Equal(t, models.AuctionStatusScheduled, f.snapshot().Status)

	// Pause before start is not a legal transition.
	require.ErrorIs(t, f.session.Pause(f.ctx, nil), ErrInvalidTransition)

	f.start()
	require.Equal(t, models.AuctionStatusLive, f.snapshot().Status)
	require.ErrorIs(t, f.session.Start(f.ctx, nil), ErrInvalidTransition)

	require.NoError(t, f.session.Pause(f.ctx, nil))
	require.Equal(t, models.AuctionStatusPaused, f.snapshot().Status)

	require.NoError(t, f.session.Resume(f.ctx, nil))
	require.NoError(t, f.session.Complete(f.ctx, nil))
	require.Equal(t, models.AuctionStatusCompleted, f.snapshot().Status)

	require.ErrorIs(t, f.session.Resume(f.ctx, nil), ErrInvalidTransition)
	require.Equal(t, 1, f.sink.countOf(events.TypeAuctionCompleted))
}

func TestNominateOpensLot(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.session.Nominate(f.ctx, f.alice, "club:arsenal")
	require.ErrorIs(t, err, ErrAuctionNotLive)

	f.start()

	_, err = f.session.Nominate(f.ctx, uuid.New(), "club:arsenal")
	require.ErrorIs(t, err, ErrUnknownManager)

	_, err = f.session.Nominate(f.ctx, f.alice, "club:barcelona")
	require.ErrorIs(t, err, ErrAssetUnavailable)

	lot := f.nominate("club:arsenal")
	require.Equal(t, models.LotStatusOpen, lot.Status)
	require.Equal(t, f.clk.Now().Add(30*time.Second), *lot.DeadlineAt)
	require.Equal(t, 1, f.sink.countOf(events.TypeLotOpened))

	_, err = f.session.Nominate(f.ctx, f.bob, "club:chelsea")
	require.ErrorIs(t, err, ErrLotOnBlock)

	snap := f.snapshot()
	require.NotNil(t, snap.Lot)
	require.Equal(t, int64(30), snap.Lot.RemainingSec)
	require.NotContains(t, snap.NominationPool, "club:arsenal")
}

func TestBiddingIsStrictlyAscending(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	out := f.bid(f.alice, lot.ID, 5)
	require.True(t, out.Accepted)
	require.Equal(t, int64(5), out.Lot.TopBid)

	// Top is 5, increment 5: 9 is too low.
	out = f.bid(f.bob, lot.ID, 9)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectBidTooLow, out.Reason)
	require.Equal(t, int64(5), out.Lot.TopBid)

	out = f.bid(f.bob, lot.ID, 10)
	require.True(t, out.Accepted)
	require.Equal(t, int64(10), out.Lot.TopBid)
	require.Equal(t, f.bob, *out.Lot.TopBidder)

	bids, err := f.store.ListBids(f.ctx, lot.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, 2, f.sink.countOf(events.TypeBidAccepted))
	require.Equal(t, 1, f.sink.countOf(events.TypeBidRejected))
}

func TestSupersededBidCarriesNewTop(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	f.bid(f.alice, lot.ID, 5)

	// Bob saw top=5 and computed 10 as the minimum raise, but Alice got to
	// 10 first. Bob's copy of the state is stale, so the reject reason says
	// superseded rather than too low, and the outcome carries the new top.
	f.bid(f.alice, lot.ID, 10)

	observed := int64(5)
	out, err := f.session.SubmitBid(f.ctx, SubmitBidRequest{
		LotID:       lot.ID,
		ManagerID:   f.bob,
		Amount:      10,
		ObservedTop: &observed,
	})
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectSuperseded, out.Reason)
	require.Equal(t, int64(10), out.Lot.TopBid)
	require.Equal(t, f.alice, *out.Lot.TopBidder)
}

func TestStaleLotBidRecordedAgainstTargetedLot(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	sold := f.nominate("club:arsenal")
	f.bid(f.alice, sold.ID, 10)
	f.clk.Advance(30 * time.Second)
	f.fire(sold.ID)

	current := f.nominate("club:chelsea")

	// Bob's client still shows the previous lot. The rejection lands in the
	// history of the lot he targeted, not the one now on the block.
	out := f.bid(f.bob, sold.ID, 15)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectLotNotOpen, out.Reason)
	require.Equal(t, sold.ID, out.Bid.LotID)

	bids, err := f.store.ListBids(f.ctx, sold.ID)
	require.NoError(t, err)
	last := bids[len(bids)-1]
	require.False(t, last.Accepted)
	require.Equal(t, models.RejectLotNotOpen, last.RejectReason)
	require.Equal(t, f.bob, last.ManagerID)

	currentBids, err := f.store.ListBids(f.ctx, current.ID)
	require.NoError(t, err)
	require.Empty(t, currentBids)
}

func TestAntiSnipeExtensionAndStaleTimer(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	opened := f.clk.Now()
	lot := f.nominate("club:arsenal")
	originalDeadline := *lot.DeadlineAt

	// 5 seconds before the deadline, inside the 10s anti-snipe window.
	f.clk.Advance(25 * time.Second)
	out := f.bid(f.alice, lot.ID, 5)
	require.True(t, out.Accepted)
	require.Equal(t, f.clk.Now().Add(10*time.Second), *out.Lot.DeadlineAt)
	require.Equal(t, opened.Add(35*time.Second), *out.Lot.DeadlineAt)
	require.Equal(t, 1, out.Lot.ExtensionCount)

	// The original deadline elapses; the timer armed for it is stale and
	// must not close the lot.
	f.clk.Advance(5 * time.Second)
	require.Equal(t, originalDeadline, f.clk.Now())
	f.fire(lot.ID)
	snap := f.snapshot()
	require.NotNil(t, snap.Lot)
	require.Equal(t, models.LotStatusOpen, snap.Lot.Lot.Status)

	// The extended deadline elapses for real.
	f.clk.Advance(5 * time.Second)
	f.fire(lot.ID)
	snap = f.snapshot()
	require.Nil(t, snap.Lot)

	entry, err := f.roster.OwnerOf(f.ctx, f.settings.LeagueID, "club:arsenal")
	require.NoError(t, err)
	require.Equal(t, f.alice, entry.ManagerID)
	require.Equal(t, int64(5), entry.PricePaid)
}

func TestReserveKeepsRemainingSlotsFillable(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	// Budget 100, 3 slots, increment 5: two future slots reserve 10.
	out := f.bid(f.alice, lot.ID, 91)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectWouldStrandSlots, out.Reason)

	out = f.bid(f.alice, lot.ID, 90)
	require.True(t, out.Accepted)
}

func TestInsufficientBudgetAfterPurchase(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	lot := f.nominate("club:arsenal")
	f.bid(f.alice, lot.ID, 80)
	f.clk.Advance(31 * time.Second)
	f.fire(lot.ID)

	// Alice holds 20 with two slots left; reserve for the other slot is 5.
	lot = f.nominate("club:chelsea")
	out := f.bid(f.alice, lot.ID, 21)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectInsufficientBudg, out.Reason)

	out = f.bid(f.alice, lot.ID, 16)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectWouldStrandSlots, out.Reason)

	out = f.bid(f.alice, lot.ID, 15)
	require.True(t, out.Accepted)
}

func TestZeroBidsGoesUnsold(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	f.clk.Advance(30 * time.Second)
	f.fire(lot.ID)

	require.Equal(t, 1, f.sink.countOf(events.TypeLotUnsold))
	snap := f.snapshot()
	require.Nil(t, snap.Lot)
	require.Contains(t, snap.NominationPool, "club:arsenal")

	// No ownership was recorded and the asset can go back on the block.
	_, err := f.roster.OwnerOf(f.ctx, f.settings.LeagueID, "club:arsenal")
	require.ErrorIs(t, err, storage.ErrNotFound)
	f.nominate("club:arsenal")
}

func TestPauseRejectsBidsAndResumeRestoresClock(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	f.clk.Advance(10 * time.Second)
	require.NoError(t, f.session.Pause(f.ctx, nil))

	out := f.bid(f.alice, lot.ID, 5)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectAuctionPaused, out.Reason)

	snap := f.snapshot()
	require.NotNil(t, snap.PausedRemainingSec)
	require.Equal(t, int64(20), *snap.PausedRemainingSec)

	// Wall time passing while paused does not consume the lot clock.
	f.clk.Advance(time.Hour)
	require.NoError(t, f.session.Resume(f.ctx, nil))

	snap = f.snapshot()
	require.NotNil(t, snap.Lot)
	require.Equal(t, int64(20), snap.Lot.RemainingSec)

	out = f.bid(f.alice, lot.ID, 5)
	require.True(t, out.Accepted)
}

func TestCompleteBlockedByOpenLot(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")

	require.ErrorIs(t, f.session.Complete(f.ctx, nil), ErrLotOnBlock)

	f.clk.Advance(30 * time.Second)
	f.fire(lot.ID)
	require.NoError(t, f.session.Complete(f.ctx, nil))
}

func TestOwnershipConflictHaltsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")
	f.bid(f.alice, lot.ID, 10)

	// A conflicting ownership row lands behind the engine's back. The
	// storage uniqueness constraint is the backstop and tripping it is
	// fatal for the session.
	require.NoError(t, f.roster.CreateEntry(f.ctx, &models.RosterEntry{
		ID:         uuid.New(),
		LeagueID:   f.settings.LeagueID,
		ManagerID:  f.bob,
		AssetRef:   "club:arsenal",
		PricePaid:  1,
		AcquiredAt: f.clk.Now(),
	}))

	f.clk.Advance(30 * time.Second)
	f.fire(lot.ID)

	require.True(t, f.session.Halted())
	_, err := f.session.SubmitBid(f.ctx, SubmitBidRequest{LotID: lot.ID, ManagerID: f.alice, Amount: 20})
	require.ErrorIs(t, err, ErrSessionHalted)
	require.ErrorIs(t, f.session.Pause(f.ctx, nil), ErrSessionHalted)
}

func TestRestoreReArmsOpenLot(t *testing.T) {
	f := newFixture(t, nil)
	f.start()
	lot := f.nominate("club:arsenal")
	f.bid(f.alice, lot.ID, 40)

	// Simulate a process restart: the old timers die with the process.
	f.manager.Shutdown()

	restored := NewManager(ManagerConfig{
		Clock:     f.clk,
		Store:     f.store,
		Roster:    f.roster,
		Recorder:  audit.NewRecorder(memory.NewAuditStore()),
		Publisher: f.sink,
		Settings: SettingsProviderFunc(func(context.Context, uuid.UUID) (models.LeagueSettings, error) {
			return f.settings, nil
		}),
	})
	require.NoError(t, restored.Restore(f.ctx))

	session, err := restored.Session(f.session.AuctionID())
	require.NoError(t, err)

	snap, err := session.Snapshot(f.ctx)
	require.NoError(t, err)
	require.Equal(t, models.AuctionStatusLive, snap.Status)
	require.NotNil(t, snap.Lot)
	require.Equal(t, int64(40), snap.Lot.Lot.TopBid)
	require.NotContains(t, snap.NominationPool, "club:arsenal")

	f.clk.Advance(30 * time.Second)
	session.handleDeadlineFire(lot.ID, f.clk.Now())

	entry, err := f.roster.OwnerOf(f.ctx, f.settings.LeagueID, "club:arsenal")
	require.NoError(t, err)
	require.Equal(t, f.alice, entry.ManagerID)
}

func TestSubmitBidValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.start()

	_, err := f.session.SubmitBid(f.ctx, SubmitBidRequest{LotID: uuid.New(), ManagerID: f.alice, Amount: 0})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = f.session.SubmitBid(f.ctx, SubmitBidRequest{LotID: uuid.New(), ManagerID: uuid.New(), Amount: 10})
	require.ErrorIs(t, err, ErrUnknownManager)

	// No lot on the block yet.
	out, err := f.session.SubmitBid(f.ctx, SubmitBidRequest{LotID: uuid.New(), ManagerID: f.alice, Amount: 10})
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, models.RejectLotNotOpen, out.Reason)
}
