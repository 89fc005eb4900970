package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage/memory"
)

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(_ context.Context, evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type engineFixture struct {
	engine *Engine
	roster *memory.RosterStore
	sink   *captureSink

	leagueID   uuid.UUID
	alice, bob uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		roster:   memory.NewRosterStore(),
		sink:     &captureSink{},
		leagueID: uuid.New(),
		alice:    uuid.New(),
		bob:      uuid.New(),
	}

	settings := models.LeagueSettings{
		LeagueID: f.leagueID,
		Scoring:  models.ScoringRules{Goal: 2, Win: 5, Draw: 2},
	}

	f.engine = NewEngine(EngineConfig{
		Clock:     clockwork.NewFakeClockAt(time.Date(2026, 8, 2, 17, 0, 0, 0, time.UTC)),
		Store:     memory.NewSettlementStore(),
		Roster:    f.roster,
		Settings:  staticSettings(settings),
		Publisher: f.sink,
	})
	return f
}

func staticSettings(settings models.LeagueSettings) SettingsProvider {
	return settingsFunc(func(context.Context, uuid.UUID) (models.LeagueSettings, error) {
		return settings, nil
	})
}

type settingsFunc func(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error)

func (f settingsFunc) SettingsFor(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error) {
	return f(ctx, leagueID)
}

func (f *engineFixture) own(t *testing.T, managerID uuid.UUID, club string) {
	t.Helper()
	require.NoError(t, f.roster.CreateEntry(context.Background(), &models.RosterEntry{
		ID:        uuid.New(),
		LeagueID:  f.leagueID,
		ManagerID: managerID,
		AssetRef:  club,
		PricePaid: 10,
	}))
}

func TestIngestScoresBothOwners(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.own(t, f.alice, "club:arsenal")
	f.own(t, f.bob, "club:chelsea")

	// Arsenal 3-1 Chelsea: Alice gets 3*2 goals + 5 win, Bob gets 2.
	out, err := f.engine.IngestFinalResult(ctx, FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:arsenal",
		AwayClub:  "club:chelsea",
		HomeGoals: 3,
		AwayGoals: 1,
	})
	require.NoError(t, err)
	require.False(t, out.AlreadyApplied)

	points, err := f.engine.Standings(ctx, f.leagueID)
	require.NoError(t, err)
	require.Equal(t, int64(11), points[f.alice])
	require.Equal(t, int64(2), points[f.bob])
	require.Equal(t, 1, f.sink.count())
}

func TestIngestDrawScoresBothSides(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.own(t, f.alice, "club:arsenal")
	f.own(t, f.bob, "club:chelsea")

	out, err := f.engine.IngestFinalResult(ctx, FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:arsenal",
		AwayClub:  "club:chelsea",
		HomeGoals: 1,
		AwayGoals: 1,
	})
	require.NoError(t, err)
	require.Len(t, out.Entries, 4)

	points, err := f.engine.Standings(ctx, f.leagueID)
	require.NoError(t, err)
	require.Equal(t, int64(4), points[f.alice])
	require.Equal(t, int64(4), points[f.bob])
}

func TestIngestUnownedClubScoresNobody(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.own(t, f.alice, "club:arsenal")

	out, err := f.engine.IngestFinalResult(ctx, FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:spurs",
		AwayClub:  "club:villa",
		HomeGoals: 2,
		AwayGoals: 0,
	})
	require.NoError(t, err)
	require.Empty(t, out.Entries)

	// The settlement row still lands, so redelivery is a no-op.
	out, err = f.engine.IngestFinalResult(ctx, FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:spurs",
		AwayClub:  "club:villa",
		HomeGoals: 2,
		AwayGoals: 0,
	})
	require.NoError(t, err)
	require.True(t, out.AlreadyApplied)
}

func TestIngestIsIdempotentPerMatch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.own(t, f.alice, "club:arsenal")
	f.own(t, f.bob, "club:chelsea")

	res := FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:arsenal",
		AwayClub:  "club:chelsea",
		HomeGoals: 2,
		AwayGoals: 0,
	}

	first, err := f.engine.IngestFinalResult(ctx, res)
	require.NoError(t, err)
	require.False(t, first.AlreadyApplied)

	second, err := f.engine.IngestFinalResult(ctx, res)
	require.NoError(t, err)
	require.True(t, second.AlreadyApplied)
	require.Equal(t, first.Settlement.ID, second.Settlement.ID)
	require.Len(t, second.Entries, len(first.Entries))

	// The ledger was applied exactly once.
	points, err := f.engine.Standings(ctx, f.leagueID)
	require.NoError(t, err)
	require.Equal(t, int64(9), points[f.alice])
	require.Equal(t, int64(0), points[f.bob])
	require.Equal(t, 1, f.sink.count())
}

func TestIngestConcurrentDuplicatesConverge(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.own(t, f.alice, "club:arsenal")

	res := FinalResult{
		LeagueID:  f.leagueID,
		MatchID:   "match-1",
		HomeClub:  "club:arsenal",
		AwayClub:  "club:chelsea",
		HomeGoals: 1,
		AwayGoals: 0,
	}

	const workers = 8
	outcomes := make([]*Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.engine.IngestFinalResult(ctx, res)
			require.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, out := range outcomes {
		require.Equal(t, outcomes[0].Settlement.ID, out.Settlement.ID)
		if !out.AlreadyApplied {
			applied++
		}
	}
	require.Equal(t, 1, applied)

	points, err := f.engine.Standings(ctx, f.leagueID)
	require.NoError(t, err)
	require.Equal(t, int64(7), points[f.alice])
}

func TestIngestValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	var verr *ValidationError

	_, err := f.engine.IngestFinalResult(ctx, FinalResult{MatchID: "m", HomeClub: "a", AwayClub: "b"})
	require.ErrorAs(t, err, &verr)

	_, err = f.engine.IngestFinalResult(ctx, FinalResult{LeagueID: f.leagueID, HomeClub: "a", AwayClub: "b"})
	require.ErrorAs(t, err, &verr)

	_, err = f.engine.IngestFinalResult(ctx, FinalResult{LeagueID: f.leagueID, MatchID: "m", HomeClub: "a"})
	require.ErrorAs(t, err, &verr)

	_, err = f.engine.IngestFinalResult(ctx, FinalResult{LeagueID: f.leagueID, MatchID: "m", HomeClub: "a", AwayClub: "b", HomeGoals: -1})
	require.ErrorAs(t, err, &verr)
}
