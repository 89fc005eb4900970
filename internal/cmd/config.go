package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// Config is the process configuration, read from the environment with the
// league roster coming from a YAML file.
type Config struct {
	HTTPPort    string
	LogLevel    string
	LeaguesFile string

	Database DatabaseConfig

	NATSURL         string
	GatewayConsumer bool // fan in bus events from other gateway instances
	ResultsFeed     bool // consume final results from the bus
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN renders the Postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func loadConfig() Config {
	return Config{
		HTTPPort:    getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LeaguesFile: getEnv("LEAGUES_FILE", "leagues.yaml"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Database: getEnv("DB_NAME", "auctioneer"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		NATSURL:         getEnv("NATS_URL", "nats://localhost:4222"),
		GatewayConsumer: getEnvAsBool("GATEWAY_CONSUMER_ENABLED", false),
		ResultsFeed:     getEnvAsBool("RESULTS_FEED_ENABLED", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// leagueConfig is the YAML shape of one league's settings.
type leagueConfig struct {
	LeagueID         string `yaml:"league_id"`
	BudgetPerManager int64  `yaml:"budget_per_manager"`
	ClubSlots        int    `yaml:"club_slots_per_manager"`
	MinIncrement     int64  `yaml:"min_increment"`
	BidTimerSec      int    `yaml:"bid_timer_sec"`
	AntiSnipeSec     int    `yaml:"anti_snipe_sec"`
	Scoring          struct {
		Goal int64 `yaml:"goal"`
		Win  int64 `yaml:"win"`
		Draw int64 `yaml:"draw"`
	} `yaml:"scoring"`
	Managers         []string `yaml:"managers"`
	NominationAssets []string `yaml:"nomination_assets"`
}

type leaguesFile struct {
	Leagues []leagueConfig `yaml:"leagues"`
}

// loadLeagueSettings parses the leagues file into a settings map keyed by
// league ID.
func loadLeagueSettings(path string) (map[uuid.UUID]models.LeagueSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read leagues file: %w", err)
	}

	var file leaguesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse leagues file: %w", err)
	}

	out := make(map[uuid.UUID]models.LeagueSettings, len(file.Leagues))
	for _, lc := range file.Leagues {
		leagueID, err := uuid.Parse(lc.LeagueID)
		if err != nil {
			return nil, fmt.Errorf("invalid league_id %q: %w", lc.LeagueID, err)
		}
		managers := make([]uuid.UUID, 0, len(lc.Managers))
		for _, m := range lc.Managers {
			managerID, err := uuid.Parse(m)
			if err != nil {
				return nil, fmt.Errorf("invalid manager id %q in league %s: %w", m, leagueID, err)
			}
			managers = append(managers, managerID)
		}
		out[leagueID] = models.LeagueSettings{
			LeagueID:         leagueID,
			BudgetPerManager: lc.BudgetPerManager,
			ClubSlotsPerMgr:  lc.ClubSlots,
			MinIncrement:     lc.MinIncrement,
			BidTimerSec:      lc.BidTimerSec,
			AntiSnipeSec:     lc.AntiSnipeSec,
			Scoring: models.ScoringRules{
				Goal: lc.Scoring.Goal,
				Win:  lc.Scoring.Win,
				Draw: lc.Scoring.Draw,
			},
			ManagerIDs:       managers,
			NominationAssets: lc.NominationAssets,
		}
	}
	return out, nil
}

// staticSettings serves league settings from the loaded file. It satisfies
// both the auction and settlement settings providers.
type staticSettings map[uuid.UUID]models.LeagueSettings

func (s staticSettings) SettingsFor(_ context.Context, leagueID uuid.UUID) (models.LeagueSettings, error) {
	settings, ok := s[leagueID]
	if !ok {
		return models.LeagueSettings{}, fmt.Errorf("league %s: %w", leagueID, storage.ErrNotFound)
	}
	return settings, nil
}
