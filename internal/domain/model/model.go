// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Category partitions teams into the two league halves.
type Category string

// Known team categories.
const (
	CategoryCollege Category = "COLLEGE"
	CategoryPro     Category = "PRO"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryCollege || c == CategoryPro
}

// GameType is the closed classification of a game. Scoring rules switch on
// it exhaustively; free-text classifications from providers are mapped to one
// of these at normalization time.
type GameType string

// Known game types.
const (
	GameRegular         GameType = "REGULAR"
	GameConferenceChamp GameType = "CONFERENCE_CHAMP"
	GameBowl            GameType = "BOWL"
	GamePlayoff         GameType = "PLAYOFF"
	GameChampionship    GameType = "CHAMPIONSHIP"
)

// Valid reports whether t is a known game type.
func (t GameType) Valid() bool {
	switch t {
	case GameRegular, GameConferenceChamp, GameBowl, GamePlayoff, GameChampionship:
		return true
	}
	return false
}

// Participant is a league member holding a fixed roster of teams.
// Immutable after league setup.
type Participant struct {
	ID        int64
	Name      string
	DraftRank int // 1-based draft order
	CreatedAt time.Time
}

// Team is a real-world team owned by exactly one participant.
// Category, grouping and the preseason benchmark are immutable.
type Team struct {
	ID             int64
	Name           string
	Category       Category
	Grouping       string  // conference or division
	BenchmarkTotal float64 // preseason over/under win total; <= 0 means unset
	ProviderID     string  // results-provider team id
	Abbreviation   string
	CreatedAt      time.Time
}

// HasBenchmark reports whether the team has a usable preseason line.
func (t Team) HasBenchmark() bool { return t.BenchmarkTotal > 0 }

// Assignment maps a team to its owning participant, fixed at draft time.
type Assignment struct {
	ID            int64
	ParticipantID int64
	TeamID        int64
	Round         int
	Pick          int // overall pick number, unique across the draft
}

// GameResult is an append-only record of one real-world game for a team.
// The qualifying flag is computed once at normalization time. Week and
// opponent form the fallback dedup key when the provider game id is absent.
type GameResult struct {
	ID             int64
	TeamID         int64
	Week           int
	Opponent       string // informational free text
	Won            bool
	Type           GameType
	Qualifying     bool // completed, non-exhibition
	Final          bool // provider marked the game completed
	ProviderGameID string
	PlayedAt       time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DedupKey identifies the real-world game this result represents. The
// provider game id wins when present; otherwise team+week+opponent.
func (g GameResult) DedupKey() string {
	if g.ProviderGameID != "" {
		return fmt.Sprintf("%d/p:%s", g.TeamID, g.ProviderGameID)
	}
	return fmt.Sprintf("%d/w:%d/o:%s", g.TeamID, g.Week, g.Opponent)
}

// LineObservation is one entry in a team's benchmark-line time series.
// Append-only; prior observations are never mutated.
type LineObservation struct {
	ID       int64
	TeamID   int64
	Week     int
	Line     float64
	Original bool // the preseason value set before week 1
	Source   string
	Note     string
	Created  time.Time
}

// Snapshot is a consistent read of the whole league, loaded in one store
// transaction. Scoring and projection operate on it without further I/O,
// which keeps both engines pure and safely reentrant.
type Snapshot struct {
	Participants []Participant
	Teams        map[int64]Team
	Rosters      map[int64][]int64           // participant id -> team ids, in pick order
	Picks        map[int64]Assignment        // team id -> assignment
	Results      map[int64][]GameResult      // team id -> results
	Lines        map[int64][]LineObservation // team id -> observations, oldest first
	TakenAt      time.Time
}

// TeamResults returns the results recorded for a team, possibly nil.
func (s *Snapshot) TeamResults(teamID int64) []GameResult {
	if s.Results == nil {
		return nil
	}
	return s.Results[teamID]
}

// OriginalLine returns the team's preseason observation, if any.
func (s *Snapshot) OriginalLine(teamID int64) (LineObservation, bool) {
	for _, obs := range s.Lines[teamID] {
		if obs.Original {
			return obs, true
		}
	}
	return LineObservation{}, false
}

// LineAtWeek returns the latest observation at or before week, falling back
// to the original preseason value when no later observation exists.
func (s *Snapshot) LineAtWeek(teamID int64, week int) (LineObservation, bool) {
	var (
		best  LineObservation
		found bool
	)
	for _, obs := range s.Lines[teamID] {
		if obs.Week > week {
			continue
		}
		if !found || obs.Week > best.Week || (obs.Week == best.Week && obs.Created.After(best.Created)) {
			best = obs
			found = true
		}
	}
	if found {
		return best, true
	}
	return s.OriginalLine(teamID)
}
