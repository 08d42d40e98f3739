// Package projection blends actual performance with the benchmark line into
// a projected final score. All math is deterministic for fixed inputs and
// config, so standings snapshots are reproducible.
package projection

import (
	"math"
	"sort"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/scoring"
	"github.com/halfline/overunder/internal/domain/types"
)

// Config holds the projection tunables. Loaded from league configuration.
type Config struct {
	// MinGames is the number of games before actual results get any weight.
	MinGames int
	// MaxActualWeight caps how much of the blend actual performance drives.
	MaxActualWeight float64
	// RampGames is the games-played count at which MaxActualWeight applies.
	RampGames int
	// RequireCompleteWeek gates blend updates to fully completed weeks.
	RequireCompleteWeek bool
	// UseLatestLine selects the latest benchmark observation instead of the
	// original preseason value.
	UseLatestLine bool
	// PostseasonScale discounts not-yet-earned bonus expectations.
	PostseasonScale float64
	// EarlyDampingGames and EarlyDampingFactor suppress small-sample swings:
	// below the games threshold, the blend's deviation from the benchmark
	// rate is scaled by the factor.
	EarlyDampingGames  int
	EarlyDampingFactor float64
	// ExceedSpread is the projected-wins margin over the line at which the
	// exceed-benchmark bonus is treated as certain.
	ExceedSpread float64
	// SeasonLength maps category to standard regular-season length.
	SeasonLength map[model.Category]int
}

// DefaultConfig mirrors the league's standard projection settings.
func DefaultConfig() Config {
	return Config{
		MinGames:            3,
		MaxActualWeight:     0.7,
		RampGames:           6,
		RequireCompleteWeek: true,
		UseLatestLine:       true,
		PostseasonScale:     0.8,
		EarlyDampingGames:   4,
		EarlyDampingFactor:  0.5,
		ExceedSpread:        2.0,
		SeasonLength: map[model.Category]int{
			model.CategoryCollege: 12,
			model.CategoryPro:     17,
		},
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithConfig overrides the default projection config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithRules sets the scoring rulebook used to value earned bonuses.
func WithRules(r scoring.Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// Engine computes projected points. Pure over the snapshot; safe for
// concurrent readers.
type Engine struct {
	cfg    Config
	rules  scoring.Rules
	scorer *scoring.Engine
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{cfg: DefaultConfig(), rules: scoring.DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	e.scorer = scoring.New(scoring.WithRules(e.rules))
	return e
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// BlendWeight returns the weight given to actual performance after
// gamesPlayed qualifying games: zero below MinGames, then a linear ramp to
// MaxActualWeight at RampGames, flat beyond.
func (e *Engine) BlendWeight(gamesPlayed int) float64 {
	if gamesPlayed < e.cfg.MinGames {
		return 0
	}
	if gamesPlayed >= e.cfg.RampGames || e.cfg.RampGames <= e.cfg.MinGames {
		return e.cfg.MaxActualWeight
	}
	frac := float64(gamesPlayed-e.cfg.MinGames) / float64(e.cfg.RampGames-e.cfg.MinGames)
	return frac * e.cfg.MaxActualWeight
}

func (e *Engine) seasonLength(cat model.Category) int {
	if n, ok := e.cfg.SeasonLength[cat]; ok && n > 0 {
		return n
	}
	return 12
}

// postseasonTiers estimates expected bonus points for a team that has not
// yet played a postseason game, as a function of projected wins. The tier
// values cover berth plus expected win points for teams at that strength.
func postseasonTiers(cat model.Category, projectedWins float64) float64 {
	if cat == model.CategoryPro {
		switch {
		case projectedWins >= 12:
			return 2.5
		case projectedWins >= 10:
			return 1.2
		case projectedWins >= 9:
			return 0.4
		}
		return 0
	}
	switch {
	case projectedWins >= 11:
		return 3.0
	case projectedWins >= 9:
		return 1.5
	case projectedWins >= 7:
		return 0.6
	}
	return 0
}

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// ProjectTeam projects a single team. currentWeek selects the benchmark
// observation when UseLatestLine is set.
func (e *Engine) ProjectTeam(snap *model.Snapshot, teamID int64, currentWeek int) types.TeamProjection {
	team := snap.Teams[teamID]
	tally := scoring.Tally(snap.TeamResults(teamID))
	seasonLen := e.seasonLength(team.Category)
	gamesPlayed := tally.RegularWins + tally.RegularLosses + tally.RegularTies

	// Benchmark rate from the configured line choice; missing benchmarks
	// disable every benchmark-dependent term rather than failing.
	var (
		line          float64
		haveLine      bool
		benchmarkRate float64
	)
	if e.cfg.UseLatestLine {
		if obs, ok := snap.LineAtWeek(teamID, currentWeek); ok {
			line, haveLine = obs.Line, true
		}
	} else if obs, ok := snap.OriginalLine(teamID); ok {
		line, haveLine = obs.Line, true
	}
	if haveLine {
		benchmarkRate = line / float64(seasonLen)
	}

	// Blend actual and benchmark win rates.
	weight := e.BlendWeight(gamesPlayed)
	var actualRate float64
	if gamesPlayed > 0 {
		actualRate = float64(tally.RegularWins) / float64(gamesPlayed)
	}
	var projectedRate float64
	switch {
	case !haveLine && gamesPlayed == 0:
		projectedRate = 0.5
	case !haveLine:
		projectedRate = actualRate
	default:
		projectedRate = weight*actualRate + (1-weight)*benchmarkRate
		if gamesPlayed < e.cfg.EarlyDampingGames {
			projectedRate = benchmarkRate + e.cfg.EarlyDampingFactor*(projectedRate-benchmarkRate)
		}
	}

	projectedWins := projectedRate * float64(seasonLen)
	if gamesPlayed > 0 {
		// No team finishes winless or unbeaten.
		projectedWins = math.Max(1, math.Min(projectedWins, float64(seasonLen)-1))
	}

	// Earned bonuses count at full weight. Regular-win points are covered by
	// the projected-wins term, so only postseason and benchmark terms appear
	// here.
	_, earnedPostseason, earnedBench := e.scorer.TeamPoints(team, tally)
	earnedBonus := earnedPostseason + earnedBench

	// Unearned expectations, discounted by the conservative scale.
	var projectedBonus float64
	hasPostseason := tally.MadePlayoffs || tally.ConferenceWin || tally.BowlWin || tally.ChampionWin
	if !hasPostseason {
		projectedBonus += postseasonTiers(team.Category, projectedWins) * e.cfg.PostseasonScale
	}
	if haveLine && earnedBench == 0 {
		spread := e.cfg.ExceedSpread
		if spread <= 0 {
			spread = 1
		}
		pExceed := clamp01((projectedWins - line) / spread)
		projectedBonus += pExceed * float64(e.rules.BeatBenchmark) * e.cfg.PostseasonScale
	}

	total := float64(earnedBonus) + projectedWins*float64(e.rules.RegularWin) + projectedBonus

	return types.TeamProjection{
		TeamID:          team.ID,
		TeamName:        team.Name,
		Category:        string(team.Category),
		GamesPlayed:     gamesPlayed,
		CurrentWins:     tally.RegularWins,
		ProjectedWins:   projectedWins,
		LineUsed:        line,
		EarnedBonus:     earnedBonus,
		ProjectedBonus:  projectedBonus,
		ProjectedPoints: total,
		Confidence:      confidence(gamesPlayed, seasonLen),
	}
}

// Project computes a participant's projected final score.
func (e *Engine) Project(snap *model.Snapshot, participantID int64, currentWeek int) (float64, []types.TeamProjection) {
	var total float64
	teams := make([]types.TeamProjection, 0, len(snap.Rosters[participantID]))
	for _, teamID := range snap.Rosters[participantID] {
		if _, ok := snap.Teams[teamID]; !ok {
			continue
		}
		tp := e.ProjectTeam(snap, teamID, currentWeek)
		total += tp.ProjectedPoints
		teams = append(teams, tp)
	}
	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].ProjectedPoints > teams[j].ProjectedPoints
	})
	return total, teams
}

// CurrentWeek derives the season week as the max regular-season week with a
// recorded result, defaulting to 1 preseason.
func CurrentWeek(snap *model.Snapshot) int {
	week := 1
	for _, results := range snap.Results {
		for _, g := range results {
			if g.Type == model.GameRegular && g.Week > week {
				week = g.Week
			}
		}
	}
	return week
}

// WeekComplete reports whether results exist beyond week, the signal that
// every game of that week has been ingested.
func WeekComplete(snap *model.Snapshot, week int) bool {
	for _, results := range snap.Results {
		for _, g := range results {
			if g.Type == model.GameRegular && g.Week > week {
				return true
			}
		}
	}
	return false
}

// confidence maps games played to a 0-100 stability estimate for display.
func confidence(gamesPlayed, seasonLen int) int {
	if gamesPlayed == 0 || seasonLen == 0 {
		return 0
	}
	progress := float64(gamesPlayed) / float64(seasonLen)
	return int(math.Round(math.Min(progress*85, 85) + math.Min(progress*15, 15)))
}
