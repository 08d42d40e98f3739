// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with league defaults.
// - Load(ctx) layers defaults, optional YAML file, and environment.
// - External errors are wrapped via this package's sentinel kinds.
package config

import "time"

// SourceConfig names one results feed: a league category served by a sport
// path on the provider API.
type SourceConfig struct {
	Name      string `koanf:"name"`
	Category  string `koanf:"category"`   // COLLEGE or PRO
	SportPath string `koanf:"sport_path"` // e.g. "college-football", "nfl"
}

// ProviderConfig bounds all I/O against the results provider.
type ProviderConfig struct {
	BaseURL        string `koanf:"base_url"`
	TimeoutSec     int    `koanf:"timeout_sec"`
	MaxRetries     int    `koanf:"max_retries"`
	RetryDelayMS   int    `koanf:"retry_delay_ms"`
	RequestDelayMS int    `koanf:"request_delay_ms"` // rate limit between calls
	FetchWorkers   int    `koanf:"fetch_workers"`
}

// RulesConfig holds the league's point values. Conference and bowl bonuses
// apply only to GatedCategory.
type RulesConfig struct {
	RegularWin      int    `koanf:"regular_win"`
	ConferenceWin   int    `koanf:"conference_win"`
	BowlWin         int    `koanf:"bowl_win"`
	PlayoffBerth    int    `koanf:"playoff_berth"`
	PlayoffWin      int    `koanf:"playoff_win"`
	ChampionshipWin int    `koanf:"championship_win"`
	BeatBenchmark   int    `koanf:"beat_benchmark"`
	GatedCategory   string `koanf:"gated_category"`
}

// ProjectionConfig holds the projection engine tunables.
type ProjectionConfig struct {
	MinGames            int     `koanf:"min_games"`
	MaxActualWeight     float64 `koanf:"max_actual_weight"`
	RampGames           int     `koanf:"ramp_games"`
	RequireCompleteWeek bool    `koanf:"require_complete_week"`
	UseLatestLine       bool    `koanf:"use_latest_line"`
	PostseasonScale     float64 `koanf:"postseason_scale"`
	EarlyDampingGames   int     `koanf:"early_damping_games"`
	EarlyDampingFactor  float64 `koanf:"early_damping_factor"`
	ExceedSpread        float64 `koanf:"exceed_spread"`
	CollegeSeasonLength int     `koanf:"college_season_length"`
	ProSeasonLength     int     `koanf:"pro_season_length"`
}

// RosterConfig is the league quota invariant: how many teams of each
// category every participant holds.
type RosterConfig struct {
	CollegeTeams int `koanf:"college_teams"`
	ProTeams     int `koanf:"pro_teams"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite file shared by all worker processes.
	DBPath string `koanf:"db_path"`

	// Season is the season year refreshes fetch.
	Season int `koanf:"season"`

	// RefreshIntervalMin schedules automatic refreshes; 0 disables them.
	RefreshIntervalMin int `koanf:"refresh_interval_min"`

	// LockTTLMin and LockAcquireTimeoutSec bound the refresh lease.
	LockTTLMin            int `koanf:"lock_ttl_min"`
	LockAcquireTimeoutSec int `koanf:"lock_acquire_timeout_sec"`

	// SeasonStarts holds per-category season start dates (YYYY-MM-DD) for
	// the preseason date heuristic and week derivation.
	CollegeSeasonStart string `koanf:"college_season_start"`
	ProSeasonStart     string `koanf:"pro_season_start"`

	Sources    []SourceConfig    `koanf:"sources"`
	Provider   ProviderConfig    `koanf:"provider"`
	Rules      RulesConfig       `koanf:"rules"`
	Projection ProjectionConfig  `koanf:"projection"`
	Roster     RosterConfig      `koanf:"roster"`
	Aliases    map[string]string `koanf:"aliases"`
}

// New creates a Config with the league's defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		DBPath:                "overunder.db",
		Season:                time.Now().Year(),
		RefreshIntervalMin:    15,
		LockTTLMin:            10,
		LockAcquireTimeoutSec: 5,
		CollegeSeasonStart:    "2025-08-23",
		ProSeasonStart:        "2025-09-04",
		Sources: []SourceConfig{
			{Name: "college-football", Category: "COLLEGE", SportPath: "college-football"},
			{Name: "nfl", Category: "PRO", SportPath: "nfl"},
		},
		Provider: ProviderConfig{
			BaseURL:        "https://site.api.espn.com/apis/site/v2/sports/football",
			TimeoutSec:     15,
			MaxRetries:     3,
			RetryDelayMS:   2000,
			RequestDelayMS: 500,
			FetchWorkers:   4,
		},
		Rules: RulesConfig{
			RegularWin:      1,
			ConferenceWin:   1,
			BowlWin:         1,
			PlayoffBerth:    1,
			PlayoffWin:      1,
			ChampionshipWin: 1,
			BeatBenchmark:   1,
			GatedCategory:   "COLLEGE",
		},
		Projection: ProjectionConfig{
			MinGames:            3,
			MaxActualWeight:     0.7,
			RampGames:           6,
			RequireCompleteWeek: true,
			UseLatestLine:       true,
			PostseasonScale:     0.8,
			EarlyDampingGames:   4,
			EarlyDampingFactor:  0.5,
			ExceedSpread:        2.0,
			CollegeSeasonLength: 12,
			ProSeasonLength:     17,
		},
		Roster: RosterConfig{
			CollegeTeams: 6,
			ProTeams:     4,
		},
		Aliases: map[string]string{},
	}
}
