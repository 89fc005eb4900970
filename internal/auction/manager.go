package auction

import (
	"context"
	"fmt"
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

// SettingsProvider resolves the league settings a session runs under.
type SettingsProvider interface {
	SettingsFor(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error)
}

// SettingsProviderFunc adapts a function to SettingsProvider.
type SettingsProviderFunc func(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error)

func (f SettingsProviderFunc) SettingsFor(ctx context.Context, leagueID uuid.UUID) (models.LeagueSettings, error) {
	return f(ctx, leagueID)
}

// Manager is the registry of live auction sessions. It creates sessions,
// hands them out by auction ID and restores them from storage after a
// restart, re-arming any open lot deadlines.
type Manager struct {
	clk       clock.Clock
	store     storage.AuctionStore
	roster    storage.RosterStore
	recorder  *audit.Recorder
	publisher events.Publisher
	settings  SettingsProvider

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// ManagerConfig carries the manager's collaborators.
type ManagerConfig struct {
	Clock     clock.Clock
	Store     storage.AuctionStore
	Roster    storage.RosterStore
	Recorder  *audit.Recorder
	Publisher events.Publisher
	Settings  SettingsProvider
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		clk:       cfg.Clock,
		store:     cfg.Store,
		roster:    cfg.Roster,
		recorder:  cfg.Recorder,
		publisher: cfg.Publisher,
		settings:  cfg.Settings,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

// CreateAuction persists a new scheduled auction for the league and registers
// its session.
func (m *Manager) CreateAuction(ctx context.Context, leagueID uuid.UUID) (*Session, error) {
	settings, err := m.settings.SettingsFor(ctx, leagueID)
	if err != nil {
		return nil, fmt.Errorf("resolve league settings: %w", err)
	}

	now := m.clk.Now()
	auction := &models.Auction{
		ID:        uuid.New(),
		LeagueID:  leagueID,
		Status:    models.AuctionStatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("persist auction: %w", err)
	}

	session := newSession(m.sessionConfig(settings), auction)
	if err := session.restore(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[auction.ID] = session
	m.mu.Unlock()

	log.Info().
		Str("auction_id", auction.ID.String()).
		Str("league_id", leagueID.String()).
		Msg("auction created")
	return session, nil
}

// Session returns the registered session for an auction.
func (m *Manager) Session(auctionID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[auctionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return session, nil
}

// SessionForLeague returns the most recently created non-completed session
// for a league, if one is registered.
func (m *Manager) SessionForLeague(leagueID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Session
	var bestCreated time.Time
	for _, s := range m.sessions {
		if s.leagueID != leagueID {
			continue
		}
		s.mu.Lock()
		status := s.auction.Status
		created := s.auction.CreatedAt
		s.mu.Unlock()
		if status == models.AuctionStatusCompleted {
			continue
		}
		if best == nil || created.After(bestCreated) {
			best = s
			bestCreated = created
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	return best, nil
}

// Restore rebuilds sessions for every non-completed auction in storage and
// re-arms open lot deadlines. Deadlines that elapsed while the process was
// down fire immediately.
func (m *Manager) Restore(ctx context.Context) error {
	auctions, err := m.store.ListAuctions(ctx)
	if err != nil {
		return fmt.Errorf("list auctions: %w", err)
	}

	restored := 0
	for i := range auctions {
		auction := auctions[i]
		if auction.Status == models.AuctionStatusCompleted {
			continue
		}
		settings, err := m.settings.SettingsFor(ctx, auction.LeagueID)
		if err != nil {
			log.Error().Err(err).
				Str("auction_id", auction.ID.String()).
				Str("league_id", auction.LeagueID.String()).
				Msg("skipping auction restore: no league settings")
			continue
		}

		session := newSession(m.sessionConfig(settings), &auction)
		if err := session.restore(ctx); err != nil {
			return fmt.Errorf("restore auction %s: %w", auction.ID, err)
		}

		m.mu.Lock()
		m.sessions[auction.ID] = session
		m.mu.Unlock()
		restored++
	}

	if restored > 0 {
		log.Info().Int("count", restored).Msg("restored auction sessions")
	}
	return nil
}

// Shutdown cancels every pending deadline timer.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		s.sched.CancelAll()
	}
}

func (m *Manager) sessionConfig(settings models.LeagueSettings) SessionConfig {
	return SessionConfig{
		Clock:     m.clk,
		Store:     m.store,
		Roster:    m.roster,
		Recorder:  m.recorder,
		Publisher: m.publisher,
		Settings:  settings,
	}
}
