// Package types contains the read-side shapes returned to callers of the
// standings and refresh operations.
package types

import "time"

// TeamBreakdown explains one team's contribution to a participant's score.
type TeamBreakdown struct {
	TeamID           int64   `json:"team_id"`
	TeamName         string  `json:"team_name"`
	Category         string  `json:"category"`
	Grouping         string  `json:"grouping,omitempty"`
	RegularWins      int     `json:"regular_wins"`
	RegularLosses    int     `json:"regular_losses"`
	RegularTies      int     `json:"regular_ties"`
	Record           string  `json:"record"` // "W-L-T"
	PostseasonPoints int     `json:"postseason_points"`
	BenchmarkTotal   float64 `json:"benchmark_total,omitempty"`
	BenchmarkBonus   int     `json:"benchmark_bonus"`
	Points           int     `json:"points"`
	Round            int     `json:"round"`
	Pick             int     `json:"pick"`
}

// TeamProjection explains one team's contribution to a projected score.
type TeamProjection struct {
	TeamID          int64   `json:"team_id"`
	TeamName        string  `json:"team_name"`
	Category        string  `json:"category"`
	GamesPlayed     int     `json:"games_played"`
	CurrentWins     int     `json:"current_wins"`
	ProjectedWins   float64 `json:"projected_wins"`
	LineUsed        float64 `json:"line_used,omitempty"`
	EarnedBonus     int     `json:"earned_bonus"`
	ProjectedBonus  float64 `json:"projected_bonus"`
	ProjectedPoints float64 `json:"projected_points"`
	Confidence      int     `json:"confidence"` // 0-100
}

// StandingRow is one participant's line in the standings.
type StandingRow struct {
	Rank             int              `json:"rank"`
	ParticipantID    int64            `json:"participant_id"`
	Participant      string           `json:"participant"`
	DraftRank        int              `json:"draft_rank"`
	Points           int              `json:"points"`
	PostseasonPoints int              `json:"postseason_points"` // tiebreaker
	ProjectedPoints  float64          `json:"projected_points"`
	ProjectedRank    int              `json:"projected_rank"`
	Record           string           `json:"record"`
	Teams            []TeamBreakdown  `json:"teams"`
	Projections      []TeamProjection `json:"projections"`
}

// Standings is the full read model exposed to the rendering layer, including
// the staleness indicator required when a refresh has failed and the page is
// serving last-known-good data.
type Standings struct {
	Rows        []StandingRow `json:"rows"`
	LastRefresh time.Time     `json:"last_refresh,omitzero"`
	ComputedAt  time.Time     `json:"computed_at"`
}

// SourceReport captures one source's outcome within a refresh cycle.
type SourceReport struct {
	Source  string `json:"source"`
	Teams   int    `json:"teams"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// RefreshReport summarizes one refresh cycle. A cycle that lost the lock
// race reports Skipped=true and nothing else; that is not an error.
type RefreshReport struct {
	ID             string         `json:"id"`
	Skipped        bool           `json:"skipped"`
	SkipReason     string         `json:"skip_reason,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	Sources        []SourceReport `json:"sources,omitempty"`
	Added          int            `json:"added"`
	Updated        int            `json:"updated"`
	SkippedRecords int            `json:"skipped_records"`
}

// Failed reports whether every source in a non-skipped cycle errored.
func (r RefreshReport) Failed() bool {
	if r.Skipped || len(r.Sources) == 0 {
		return false
	}
	for _, s := range r.Sources {
		if s.Error == "" {
			return false
		}
	}
	return true
}
