// Package normalize converts heterogeneous provider payloads into canonical
// game-result candidates. The transform is pure: persistence and dedup are
// the refresh coordinator's job.
package normalize

import (
	"context"
	"strings"
	"time"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/pkg/logger"
)

// Season phase codes as reported by the schedule feed.
const (
	phasePreseason  = 1
	phaseRegular    = 2
	phasePostseason = 3
)

// SchedulePayload is one team's season schedule as fetched from the results
// provider, already decoded from the wire format.
type SchedulePayload struct {
	TeamProviderID string
	TeamName       string
	Events         []ScheduleEvent
}

// ScheduleEvent is a single game within a schedule payload.
type ScheduleEvent struct {
	ProviderGameID string
	Date           time.Time
	Week           int // 0 when the feed omits it
	SeasonPhase    int // 1 preseason, 2 regular, 3 postseason
	Label          string // provider's free-text game label, e.g. "Rose Bowl"
	Completed      bool
	Opponent       string
	PointsFor      float64
	PointsAgainst  float64
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithAliases sets the provider-name alias table. A nil value in the map
// marks a name as known-but-untracked, suppressing the unmatched warning.
func WithAliases(aliases map[string]string) Option {
	return func(n *Normalizer) { n.aliases = aliases }
}

// WithSeasonStart sets the date heuristics used when the feed omits week
// numbers or the preseason flag.
func WithSeasonStart(starts map[model.Category]time.Time) Option {
	return func(n *Normalizer) { n.seasonStarts = starts }
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(n *Normalizer) {
		if log != nil {
			n.log = log
		}
	}
}

// Normalizer turns schedule payloads into GameResult candidates for teams it
// can identify. It holds only immutable lookup state and is safe for
// concurrent use.
type Normalizer struct {
	aliases      map[string]string
	seasonStarts map[model.Category]time.Time
	log          logger.Logger
}

// New creates a Normalizer with the given options.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		aliases:      map[string]string{},
		seasonStarts: map[model.Category]time.Time{},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.log == nil {
		n.log = logger.Get().Named("normalize")
	}
	return n
}

// Index resolves provider team identities to internal teams.
type Index struct {
	byProviderID map[string]model.Team
	byName       map[string]model.Team
	byAbbr       map[string]model.Team
}

// NewIndex builds a resolver index over the given teams.
func NewIndex(teams []model.Team) *Index {
	idx := &Index{
		byProviderID: make(map[string]model.Team, len(teams)),
		byName:       make(map[string]model.Team, len(teams)),
		byAbbr:       make(map[string]model.Team, len(teams)),
	}
	for _, t := range teams {
		if t.ProviderID != "" {
			idx.byProviderID[t.ProviderID] = t
		}
		idx.byName[t.Name] = t
		if t.Abbreviation != "" {
			idx.byAbbr[t.Abbreviation] = t
		}
	}
	return idx
}

// Resolve maps a provider identity to an internal team. Provider id is the
// most reliable key; the alias table and exact name/abbreviation matches
// follow. Unmatched names are logged and skipped, never fatal; names the
// alias table maps to "" are known-but-untracked and skipped silently.
func (n *Normalizer) Resolve(ctx context.Context, idx *Index, providerID, name, abbr string) (model.Team, bool) {
	if t, ok := idx.byProviderID[providerID]; ok && providerID != "" {
		return t, true
	}
	if mapped, ok := n.aliases[name]; ok {
		if mapped == "" {
			// Explicitly untracked name; skip silently.
			return model.Team{}, false
		}
		if t, ok := idx.byName[mapped]; ok {
			return t, true
		}
	}
	if t, ok := idx.byName[name]; ok {
		return t, true
	}
	if abbr != "" {
		if t, ok := idx.byAbbr[abbr]; ok {
			return t, true
		}
	}
	n.log.Warn(ctx, "unmatched provider team",
		logger.String("name", name),
		logger.String("abbr", abbr),
		logger.String("provider_id", providerID))
	return model.Team{}, false
}

// Candidates extracts canonical GameResult candidates for team from its
// schedule payload. Preseason/exhibition games and games not yet final are
// dropped here, once; the qualifying flag is never recomputed downstream.
func (n *Normalizer) Candidates(team model.Team, payload SchedulePayload) []model.GameResult {
	out := make([]model.GameResult, 0, len(payload.Events))
	for _, ev := range payload.Events {
		if !ev.Completed {
			continue
		}
		if n.exhibition(team.Category, ev) {
			continue
		}
		week := ev.Week
		if week <= 0 {
			week = n.weekFromDate(team.Category, ev.Date)
		}
		out = append(out, model.GameResult{
			TeamID:         team.ID,
			Week:           week,
			Opponent:       ev.Opponent,
			Won:            ev.PointsFor > ev.PointsAgainst,
			Type:           classify(team.Category, ev),
			Qualifying:     true,
			Final:          true,
			ProviderGameID: ev.ProviderGameID,
			PlayedAt:       ev.Date,
		})
	}
	return out
}

// exhibition applies the explicit phase flag, falling back to the date
// heuristic when the feed does not phase-tag the event.
func (n *Normalizer) exhibition(cat model.Category, ev ScheduleEvent) bool {
	if ev.SeasonPhase == phasePreseason {
		return true
	}
	if ev.SeasonPhase == 0 {
		if start, ok := n.seasonStarts[cat]; ok && !ev.Date.IsZero() && ev.Date.Before(start) {
			return true
		}
	}
	return false
}

func (n *Normalizer) weekFromDate(cat model.Category, date time.Time) int {
	start, ok := n.seasonStarts[cat]
	if !ok || date.IsZero() || date.Before(start) {
		return 1
	}
	return int(date.Sub(start).Hours()/(24*7)) + 1
}

// classify maps the provider's phase code and free-text label onto the
// closed game-type enum.
func classify(cat model.Category, ev ScheduleEvent) model.GameType {
	label := strings.ToLower(ev.Label)
	switch {
	case strings.Contains(label, "conference championship"):
		return model.GameConferenceChamp
	case strings.Contains(label, "super bowl"),
		strings.Contains(label, "national championship"):
		return model.GameChampionship
	case strings.Contains(label, "playoff"):
		return model.GamePlayoff
	}
	if ev.SeasonPhase == phasePostseason {
		if cat == model.CategoryCollege {
			return model.GameBowl
		}
		return model.GamePlayoff
	}
	return model.GameRegular
}
