package config

import (
	"fmt"
	"time"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/projection"
	"github.com/halfline/overunder/internal/domain/scoring"
)

// ScoringRules converts the configured point values into engine rules.
func (c *Config) ScoringRules() scoring.Rules {
	return scoring.Rules{
		RegularWin:      c.Rules.RegularWin,
		ConferenceWin:   c.Rules.ConferenceWin,
		BowlWin:         c.Rules.BowlWin,
		PlayoffBerth:    c.Rules.PlayoffBerth,
		PlayoffWin:      c.Rules.PlayoffWin,
		ChampionshipWin: c.Rules.ChampionshipWin,
		BeatBenchmark:   c.Rules.BeatBenchmark,
		GatedCategory:   model.Category(c.Rules.GatedCategory),
	}
}

// ProjectionSettings converts the configured tunables into engine settings.
func (c *Config) ProjectionSettings() projection.Config {
	return projection.Config{
		MinGames:            c.Projection.MinGames,
		MaxActualWeight:     c.Projection.MaxActualWeight,
		RampGames:           c.Projection.RampGames,
		RequireCompleteWeek: c.Projection.RequireCompleteWeek,
		UseLatestLine:       c.Projection.UseLatestLine,
		PostseasonScale:     c.Projection.PostseasonScale,
		EarlyDampingGames:   c.Projection.EarlyDampingGames,
		EarlyDampingFactor:  c.Projection.EarlyDampingFactor,
		ExceedSpread:        c.Projection.ExceedSpread,
		SeasonLength: map[model.Category]int{
			model.CategoryCollege: c.Projection.CollegeSeasonLength,
			model.CategoryPro:     c.Projection.ProSeasonLength,
		},
	}
}

// SeasonStarts parses the per-category season start dates.
func (c *Config) SeasonStarts() (map[model.Category]time.Time, error) {
	college, err := time.Parse("2006-01-02", c.CollegeSeasonStart)
	if err != nil {
		return nil, fmt.Errorf("%w: college_season_start: %w", ErrInvalidConfig, err)
	}
	pro, err := time.Parse("2006-01-02", c.ProSeasonStart)
	if err != nil {
		return nil, fmt.Errorf("%w: pro_season_start: %w", ErrInvalidConfig, err)
	}
	return map[model.Category]time.Time{
		model.CategoryCollege: college,
		model.CategoryPro:     pro,
	}, nil
}
