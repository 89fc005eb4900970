package models

import "github.com/google/uuid"

// ScoringRules holds the point values applied when a match result settles.
type ScoringRules struct {
	Goal int64 `json:"goal"`
	Win  int64 `json:"win"`
	Draw int64 `json:"draw"`
}

// LeagueSettings is supplied by the league service and read-only to the
// engine. The engine reads whatever settings are in effect when a lot opens.
type LeagueSettings struct {
	LeagueID         uuid.UUID    `json:"league_id"`
	BudgetPerManager int64        `json:"budget_per_manager"`
	ClubSlotsPerMgr  int          `json:"club_slots_per_manager"`
	MinIncrement     int64        `json:"min_increment"`
	BidTimerSec      int          `json:"bid_timer_sec"`
	AntiSnipeSec     int          `json:"anti_snipe_sec"`
	Scoring          ScoringRules `json:"scoring_rules"`
	ManagerIDs       []uuid.UUID  `json:"manager_ids"`
	NominationAssets []string     `json:"nomination_assets,omitempty"`
}
