// Package scoring computes current point totals from the league snapshot.
package scoring

import (
	"fmt"
	"sort"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/types"
)

// Rules holds the point value of each scoring term. Values come from league
// configuration; the engine never hardcodes them. A league that disagrees
// with a bonus (e.g. crediting a playoff berth on an 0-and-out loss) sets
// its value to zero instead of patching the engine.
type Rules struct {
	RegularWin      int
	ConferenceWin   int
	BowlWin         int
	PlayoffBerth    int
	PlayoffWin      int
	ChampionshipWin int
	BeatBenchmark   int
	// GatedCategory limits the conference-championship and bowl bonuses to
	// one category. Empty disables the gate.
	GatedCategory model.Category
}

// DefaultRules mirrors the league's standard one-point-per-term rulebook.
func DefaultRules() Rules {
	return Rules{
		RegularWin:      1,
		ConferenceWin:   1,
		BowlWin:         1,
		PlayoffBerth:    1,
		PlayoffWin:      1,
		ChampionshipWin: 1,
		BeatBenchmark:   1,
		GatedCategory:   model.CategoryCollege,
	}
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRules overrides the default rulebook.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// Engine is a pure function over a snapshot; it holds no mutable state and
// may be shared across concurrent readers.
type Engine struct {
	rules Rules
}

// New creates an Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the engine's rulebook.
func (e *Engine) Rules() Rules { return e.rules }

// TeamTally aggregates one team's results into the counts the rules need.
// Every term is derived from the full result set on each call, so
// recomputation can never double-count.
type TeamTally struct {
	RegularWins   int
	RegularLosses int
	RegularTies   int
	ConferenceWin bool
	BowlWin       bool
	MadePlayoffs  bool
	PlayoffWins   int
	ChampionWin   bool
}

// Tally folds a team's game results into a TeamTally. Only qualifying games
// count; a team with zero qualifying games tallies to the zero value.
func Tally(results []model.GameResult) TeamTally {
	var t TeamTally
	for _, g := range results {
		if !g.Qualifying {
			continue
		}
		switch g.Type {
		case model.GameRegular:
			if g.Won {
				t.RegularWins++
			} else {
				t.RegularLosses++
			}
		case model.GameConferenceChamp:
			if g.Won {
				t.ConferenceWin = true
			}
		case model.GameBowl:
			if g.Won {
				t.BowlWin = true
			}
		case model.GamePlayoff:
			// A berth counts even on a loss.
			t.MadePlayoffs = true
			if g.Won {
				t.PlayoffWins++
			}
		case model.GameChampionship:
			if g.Won {
				t.ChampionWin = true
			}
		}
	}
	return t
}

// TeamPoints scores a single team under the rules. The benchmark bonus uses
// the original preseason line only; a team without one can never earn it.
func (e *Engine) TeamPoints(team model.Team, tally TeamTally) (points, postseason, benchmarkBonus int) {
	points = tally.RegularWins * e.rules.RegularWin

	gated := e.rules.GatedCategory == "" || team.Category == e.rules.GatedCategory
	if gated && tally.ConferenceWin {
		points += e.rules.ConferenceWin
		postseason += e.rules.ConferenceWin
	}
	if gated && tally.BowlWin {
		points += e.rules.BowlWin
		postseason += e.rules.BowlWin
	}
	if tally.MadePlayoffs {
		points += e.rules.PlayoffBerth
		postseason += e.rules.PlayoffBerth
	}
	points += tally.PlayoffWins * e.rules.PlayoffWin
	postseason += tally.PlayoffWins * e.rules.PlayoffWin
	if tally.ChampionWin {
		points += e.rules.ChampionshipWin
		postseason += e.rules.ChampionshipWin
	}
	if team.HasBenchmark() && float64(tally.RegularWins) > team.BenchmarkTotal {
		benchmarkBonus = e.rules.BeatBenchmark
		points += benchmarkBonus
	}
	return points, postseason, benchmarkBonus
}

// Score computes a participant's current points and per-team breakdown.
func (e *Engine) Score(snap *model.Snapshot, participantID int64) (int, []types.TeamBreakdown) {
	total := 0
	breakdown := make([]types.TeamBreakdown, 0, len(snap.Rosters[participantID]))

	for _, teamID := range snap.Rosters[participantID] {
		team, ok := snap.Teams[teamID]
		if !ok {
			continue
		}
		tally := Tally(snap.TeamResults(teamID))
		points, postseason, benchBonus := e.TeamPoints(team, tally)
		total += points

		pick := snap.Picks[teamID]
		breakdown = append(breakdown, types.TeamBreakdown{
			TeamID:           team.ID,
			TeamName:         team.Name,
			Category:         string(team.Category),
			Grouping:         team.Grouping,
			RegularWins:      tally.RegularWins,
			RegularLosses:    tally.RegularLosses,
			RegularTies:      tally.RegularTies,
			Record:           fmt.Sprintf("%d-%d-%d", tally.RegularWins, tally.RegularLosses, tally.RegularTies),
			PostseasonPoints: postseason,
			BenchmarkTotal:   team.BenchmarkTotal,
			BenchmarkBonus:   benchBonus,
			Points:           points,
			Round:            pick.Round,
			Pick:             pick.Pick,
		})
	}

	// Best teams first; draft pick order breaks ties.
	sort.SliceStable(breakdown, func(i, j int) bool {
		if breakdown[i].Points != breakdown[j].Points {
			return breakdown[i].Points > breakdown[j].Points
		}
		return breakdown[i].Pick < breakdown[j].Pick
	})
	return total, breakdown
}
