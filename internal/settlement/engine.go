// Package settlement turns final match results into points ledger entries
// for the managers owning the clubs involved. Application is idempotent per
// (league_id, match_id): the settlement row's uniqueness constraint is the
// guard, so replays and concurrent duplicates converge on the first outcome.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/audit"
	"github.com/openleague/auctioneer/internal/clock"
	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// Ledger entry reasons.
const (
	ReasonGoals = "goals"
	ReasonWin   = "win"
	ReasonDraw  = "draw"
)

// FinalResult is one finished match as delivered by the results feed.
type FinalResult struct {
	LeagueID  uuid.UUID `json:"league_id"`
	MatchID   string    `json:"match_id"`
	HomeClub  string    `json:"home_club"`
	AwayClub  string    `json:"away_club"`
	HomeGoals int       `json:"home_goals"`
	AwayGoals int       `json:"away_goals"`
}

// Outcome reports what a result application did. AlreadyApplied means a
// settlement for the match existed and the prior ledger is returned.
type Outcome struct {
	Settlement     *models.Settlement         `json:"settlement"`
	Entries        []models.PointsLedgerEntry `json:"entries"`
	AlreadyApplied bool                       `json:"already_applied"`
}

// SettingsProvider resolves the scoring rules in effect for a league.
type SettingsProvider interface {
	SettingsFor(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error)
}

// Engine applies final results against club ownership.
type Engine struct {
	clk       clock.Clock
	store     storage.SettlementStore
	roster    storage.RosterStore
	settings  SettingsProvider
	recorder  *audit.Recorder
	publisher events.Publisher
}

// EngineConfig carries the engine's collaborators.
type EngineConfig struct {
	Clock     clock.Clock
	Store     storage.SettlementStore
	Roster    storage.RosterStore
	Settings  SettingsProvider
	Recorder  *audit.Recorder
	Publisher events.Publisher
}

// NewEngine creates a settlement engine.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		clk:       cfg.Clock,
		store:     cfg.Store,
		roster:    cfg.Roster,
		settings:  cfg.Settings,
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
	}
}

// IngestFinalResult applies one final result exactly once. Redelivery of an
// already-settled match returns the prior outcome without touching the
// ledger.
func (e *Engine) IngestFinalResult(ctx context.Context, res FinalResult) (*Outcome, error) {
	if res.LeagueID == uuid.Nil {
		return nil, &ValidationError{Field: "league_id", Reason: "must be set"}
	}
	if res.MatchID == "" {
		return nil, &ValidationError{Field: "match_id", Reason: "must not be empty"}
	}
	if res.HomeClub == "" || res.AwayClub == "" {
		return nil, &ValidationError{Field: "clubs", Reason: "both clubs must be set"}
	}
	if res.HomeGoals < 0 || res.AwayGoals < 0 {
		return nil, &ValidationError{Field: "goals", Reason: "must not be negative"}
	}

	// Fast path: the match already settled.
	if prior, entries, err := e.store.Get(ctx, res.LeagueID, res.MatchID); err == nil {
		return &Outcome{Settlement: prior, Entries: entries, AlreadyApplied: true}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check settlement: %w", err)
	}

	settings, err := e.settings.SettingsFor(ctx, res.LeagueID)
	if err != nil {
		return nil, fmt.Errorf("resolve league settings: %w", err)
	}

	entries, err := e.computeEntries(ctx, res, settings.Scoring)
	if err != nil {
		return nil, err
	}

	settlement := &models.Settlement{
		ID:        uuid.New(),
		LeagueID:  res.LeagueID,
		MatchID:   res.MatchID,
		AppliedAt: e.clk.Now(),
	}

	if err := e.store.Apply(ctx, settlement, entries); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// A concurrent apply won the race; its ledger is the truth.
			prior, priorEntries, getErr := e.store.Get(ctx, res.LeagueID, res.MatchID)
			if getErr != nil {
				return nil, fmt.Errorf("load racing settlement: %w", getErr)
			}
			return &Outcome{Settlement: prior, Entries: priorEntries, AlreadyApplied: true}, nil
		}
		return nil, fmt.Errorf("apply settlement: %w", err)
	}

	e.announce(ctx, res, settlement, entries)
	return &Outcome{Settlement: settlement, Entries: entries}, nil
}

// computeEntries scores both clubs of the match. A club nobody owns scores
// nobody; the settlement row is still written so redelivery stays a no-op.
func (e *Engine) computeEntries(ctx context.Context, res FinalResult, scoring models.ScoringRules) ([]models.PointsLedgerEntry, error) {
	var entries []models.PointsLedgerEntry

	homeResult, awayResult := resultPoints(scoring, res.HomeGoals, res.AwayGoals)

	sides := []struct {
		club   string
		goals  int
		result int64
	}{
		{res.HomeClub, res.HomeGoals, homeResult},
		{res.AwayClub, res.AwayGoals, awayResult},
	}

	now := e.clk.Now()
	for _, side := range sides {
		owner, err := e.roster.OwnerOf(ctx, res.LeagueID, side.club)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve owner of %s: %w", side.club, err)
		}

		if delta := int64(side.goals) * scoring.Goal; delta != 0 {
			entries = append(entries, models.PointsLedgerEntry{
				ID:          uuid.New(),
				LeagueID:    res.LeagueID,
				ManagerID:   owner.ManagerID,
				MatchID:     res.MatchID,
				PointsDelta: delta,
				Reason:      ReasonGoals,
				CreatedAt:   now,
			})
		}
		if side.result != 0 {
			reason := ReasonWin
			if res.HomeGoals == res.AwayGoals {
				reason = ReasonDraw
			}
			entries = append(entries, models.PointsLedgerEntry{
				ID:          uuid.New(),
				LeagueID:    res.LeagueID,
				ManagerID:   owner.ManagerID,
				MatchID:     res.MatchID,
				PointsDelta: side.result,
				Reason:      reason,
				CreatedAt:   now,
			})
		}
	}
	return entries, nil
}

func resultPoints(scoring models.ScoringRules, homeGoals, awayGoals int) (home, away int64) {
	switch {
	case homeGoals > awayGoals:
		return scoring.Win, 0
	case homeGoals < awayGoals:
		return 0, scoring.Win
	default:
		return scoring.Draw, scoring.Draw
	}
}

func (e *Engine) announce(ctx context.Context, res FinalResult, settlement *models.Settlement, entries []models.PointsLedgerEntry) {
	deltas := make([]events.SettlementDelta, 0, len(entries))
	for _, entry := range entries {
		deltas = append(deltas, events.SettlementDelta{
			ManagerID:   entry.ManagerID,
			PointsDelta: entry.PointsDelta,
			Reason:      entry.Reason,
		})
	}
	payload := events.SettlementAppliedPayload{MatchID: res.MatchID, Deltas: deltas}

	if e.recorder != nil {
		auditErr := e.recorder.Record(ctx, res.LeagueID, nil, nil, audit.ActionSettlementApplied, payload)
		if auditErr != nil {
			log.Error().Err(auditErr).Str("match_id", res.MatchID).Msg("audit record failed")
		}
	}

	if e.publisher == nil {
		return
	}
	evt, err := events.New(events.TypeSettlementApplied, res.LeagueID, uuid.Nil, settlement.AppliedAt, payload)
	if err != nil {
		log.Error().Err(err).Str("match_id", res.MatchID).Msg("failed to build settlement event")
		return
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		log.Error().Err(err).Str("match_id", res.MatchID).Msg("failed to publish settlement event")
	}
}

// Standings sums the points ledger per manager.
func (e *Engine) Standings(ctx context.Context, leagueID uuid.UUID) (map[uuid.UUID]int64, error) {
	return e.store.PointsByManager(ctx, leagueID)
}

// ValidationError reports a malformed result, rejected before application.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
