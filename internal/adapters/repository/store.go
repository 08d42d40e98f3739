// Package repository defines the entity store contract and its SQLite
// implementation.
package repository

import (
	"context"
	"time"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/types"
)

// UpsertStats summarizes one transactional batch of game-result upserts.
type UpsertStats struct {
	Added    int
	Updated  int
	Skipped  int // unchanged, or change not allowed on a final record
	Rejected int // dedup-key collisions with conflicting immutable fields
}

// Store provides durable access to the league's entities. Readers get a
// consistent snapshot; the only mutating path during a season is the
// refresh cycle's upsert plus manual line updates.
type Store interface {
	// League setup, used by the seed tool. Create* fills in the record id.
	CreateParticipant(ctx context.Context, p *model.Participant) error
	CreateTeam(ctx context.Context, t *model.Team) error
	CreateAssignment(ctx context.Context, a *model.Assignment) error

	Team(ctx context.Context, id int64) (model.Team, error)
	TeamsByCategory(ctx context.Context, cat model.Category) ([]model.Team, error)

	// UpsertGameResults applies one source's candidates as a single
	// transaction: either the whole batch commits or none of it does.
	UpsertGameResults(ctx context.Context, candidates []model.GameResult) (UpsertStats, error)

	// AppendLineObservation adds to a team's line history. Prior
	// observations are never mutated or deleted.
	AppendLineObservation(ctx context.Context, obs *model.LineObservation) error
	// LineHistory returns observations within lookbackWeeks of the team's
	// latest observed week, oldest first. lookbackWeeks <= 0 returns all.
	LineHistory(ctx context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error)

	// Snapshot loads the whole league in one read transaction.
	Snapshot(ctx context.Context) (*model.Snapshot, error)

	// RecordRefresh logs a completed cycle; LastRefresh returns the end of
	// the most recent successful one, the staleness indicator for readers.
	RecordRefresh(ctx context.Context, report types.RefreshReport) error
	LastRefresh(ctx context.Context) (time.Time, error)

	Close() error
}
