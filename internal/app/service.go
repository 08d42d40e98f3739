// Package service provides the core business service that implements the
// standings, refresh, and line-history operations exposed over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/halfline/overunder/internal/adapters/lock"
	"github.com/halfline/overunder/internal/adapters/provider"
	"github.com/halfline/overunder/internal/adapters/repository"
	"github.com/halfline/overunder/internal/config"
	"github.com/halfline/overunder/internal/domain/dedupe"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/internal/domain/projection"
	"github.com/halfline/overunder/internal/domain/scoring"
	"github.com/halfline/overunder/internal/domain/types"
	"github.com/halfline/overunder/pkg/logger"
	"github.com/halfline/overunder/pkg/metrics"
)

// refreshLeaseName is the system-wide lock every refresher contends on.
const refreshLeaseName = "refresh"

// Service wires the engines and adapters behind the exposed operations.
// Reads are side-effect-free and safe to run concurrently; Refresh is the
// only mutating path and serializes itself through the cross-process lease.
type Service struct {
	store      repository.Store
	locker     *lock.Locker
	pool       *provider.Pool
	normalizer *normalize.Normalizer
	scorer     *scoring.Engine
	projector  *projection.Engine

	sources     []config.SourceConfig
	season      int
	lockTimeout time.Duration

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the entity store.
func WithStore(store repository.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithLocker sets the refresh lease locker.
func WithLocker(locker *lock.Locker) Option {
	return func(s *Service) { s.locker = locker }
}

// WithFetchPool sets the provider fetch pool.
func WithFetchPool(pool *provider.Pool) Option {
	return func(s *Service) { s.pool = pool }
}

// WithNormalizer sets the result normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// WithScorer sets the scoring engine.
func WithScorer(e *scoring.Engine) Option {
	return func(s *Service) { s.scorer = e }
}

// WithProjector sets the projection engine.
func WithProjector(e *projection.Engine) Option {
	return func(s *Service) { s.projector = e }
}

// WithSources sets the refresh sources.
func WithSources(sources []config.SourceConfig) Option {
	return func(s *Service) { s.sources = sources }
}

// WithSeason sets the season year refreshes fetch.
func WithSeason(year int) Option {
	return func(s *Service) {
		if year > 0 {
			s.season = year
		}
	}
}

// WithLockTimeout bounds how long a refresh waits for the lease.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// New constructs a Service. Store, locker, and pool are required; engines
// default to the standard league configuration.
func New(opts ...Option) *Service {
	s := &Service{
		season:      time.Now().Year(),
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scorer == nil {
		s.scorer = scoring.New()
	}
	if s.projector == nil {
		s.projector = projection.New()
	}
	if s.normalizer == nil {
		s.normalizer = normalize.New()
	}
	if s.log == nil {
		s.log = logger.Get().Named("service")
	}
	return s
}

// Refresh runs one fetch-normalize-upsert cycle. At most one refresh runs
// system-wide; a caller that loses the lease race gets Skipped=true, which
// is a normal outcome, not an error. Per-source failures are isolated into
// the report and never abort the cycle.
func (s *Service) Refresh(ctx context.Context) types.RefreshReport {
	report := types.RefreshReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	acquireCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	lease, err := s.locker.Acquire(acquireCtx, refreshLeaseName)
	if err != nil {
		report.Skipped = true
		if errors.Is(err, lock.ErrContended) {
			report.SkipReason = "refresh already in progress"
			metrics.RecordRefreshSkipped()
			s.log.Info(ctx, "refresh skipped, lock contended")
		} else {
			report.SkipReason = "lock acquisition failed: " + err.Error()
			s.log.Error(ctx, "refresh lock acquisition failed", logger.Error(err))
		}
		report.FinishedAt = time.Now().UTC()
		return report
	}
	// The lease is released on every exit path, including panics in a
	// source; a crashed process is covered by the lease TTL.
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn(ctx, "lease release failed", logger.Error(err))
		}
	}()

	deduper := dedupe.NewCycle()
	for _, src := range s.sources {
		sr := s.refreshSource(ctx, src, deduper)
		report.Sources = append(report.Sources, sr)
		report.Added += sr.Added
		report.Updated += sr.Updated
		report.SkippedRecords += sr.Skipped
		if sr.Error != "" {
			metrics.RecordSourceError(src.Name)
		}
	}
	report.FinishedAt = time.Now().UTC()

	metrics.RecordRefreshCycle()
	metrics.RecordUpsert("added", report.Added)
	metrics.RecordUpsert("updated", report.Updated)
	metrics.RecordUpsert("skipped", report.SkippedRecords)

	if err := s.store.RecordRefresh(ctx, report); err != nil {
		s.log.Error(ctx, "failed to record refresh", logger.Error(err))
	} else if !report.Failed() {
		metrics.SetLastRefresh(float64(report.FinishedAt.Unix()))
	}

	s.log.Info(ctx, "refresh cycle finished",
		logger.String("report_id", report.ID),
		logger.Int("added", report.Added),
		logger.Int("updated", report.Updated),
		logger.Int("skipped", report.SkippedRecords))
	return report
}

// refreshSource fetches, normalizes, and persists one source. All of its
// candidates commit in a single store transaction, so readers never observe
// a half-written source.
func (s *Service) refreshSource(ctx context.Context, src config.SourceConfig, deduper dedupe.Deduper) types.SourceReport {
	sr := types.SourceReport{Source: src.Name}

	teams, err := s.store.TeamsByCategory(ctx, model.Category(src.Category))
	if err != nil {
		sr.Error = fmt.Sprintf("list teams: %v", err)
		return sr
	}
	sr.Teams = len(teams)
	if len(teams) == 0 {
		return sr
	}
	idx := normalize.NewIndex(teams)

	fetched := s.pool.FetchAll(ctx, src.SportPath, s.season, teams)

	var (
		candidates []model.GameResult
		fetchErrs  int
		firstErr   error
	)
	for _, fr := range fetched {
		if fr.Err != nil {
			fetchErrs++
			if firstErr == nil {
				firstErr = fr.Err
			}
			continue
		}
		// Confirm the payload is for the team we asked about; a feed that
		// answers with an unknown or different team is skipped, not fatal.
		// Only payload identity goes into Resolve: feeding the requested
		// team's own abbreviation would make any payload resolve back to it.
		resolved, ok := s.normalizer.Resolve(ctx, idx, fr.Payload.TeamProviderID, fr.Payload.TeamName, "")
		if !ok || resolved.ID != fr.Team.ID {
			s.log.Warn(ctx, "payload did not resolve to requested team",
				logger.String("team", fr.Team.Name))
			continue
		}
		for _, cand := range s.normalizer.Candidates(fr.Team, fr.Payload) {
			if deduper.SeenAndRecord(ctx, cand.DedupKey()) {
				continue
			}
			candidates = append(candidates, cand)
		}
	}

	stats, err := s.store.UpsertGameResults(ctx, candidates)
	if err != nil {
		// The batch rolled back; forget its keys so a retry can see them.
		for _, cand := range candidates {
			deduper.Unrecord(ctx, cand.DedupKey())
		}
		sr.Error = fmt.Sprintf("persist results: %v", err)
		return sr
	}
	sr.Added = stats.Added
	sr.Updated = stats.Updated
	sr.Skipped = stats.Skipped
	metrics.RecordUpsert("rejected", stats.Rejected)

	if fetchErrs > 0 {
		sr.Error = fmt.Sprintf("%d/%d schedule fetches failed: %v", fetchErrs, len(teams), firstErr)
	}
	return sr
}

// Standings recomputes the full standings from a fresh snapshot. Never
// cached: the snapshot is the single source of truth, which keeps scoring
// and projection pure and the read path trivially reentrant.
func (s *Service) Standings(ctx context.Context) (types.Standings, error) {
	start := time.Now()

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return types.Standings{}, fmt.Errorf("load snapshot: %w", err)
	}

	week := projection.CurrentWeek(snap)
	if s.projector.Config().RequireCompleteWeek && week > 1 && !projection.WeekComplete(snap, week) {
		// An in-flight week would let partial results swing the blend; hold
		// the line selection at the last completed week.
		week--
	}

	rows := make([]types.StandingRow, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		points, breakdown := s.scorer.Score(snap, p.ID)
		projected, projTeams := s.projector.Project(snap, p.ID, week)

		var wins, losses, ties, postseason int
		for _, tb := range breakdown {
			wins += tb.RegularWins
			losses += tb.RegularLosses
			ties += tb.RegularTies
			postseason += tb.PostseasonPoints
		}
		rows = append(rows, types.StandingRow{
			ParticipantID:    p.ID,
			Participant:      p.Name,
			DraftRank:        p.DraftRank,
			Points:           points,
			PostseasonPoints: postseason,
			ProjectedPoints:  projected,
			Record:           fmt.Sprintf("%d-%d-%d", wins, losses, ties),
			Teams:            breakdown,
			Projections:      projTeams,
		})
	}

	// Points first, postseason points as tiebreaker, draft order as a
	// stable last resort.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		if rows[i].PostseasonPoints != rows[j].PostseasonPoints {
			return rows[i].PostseasonPoints > rows[j].PostseasonPoints
		}
		return rows[i].DraftRank < rows[j].DraftRank
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	// Projected rank without disturbing the standings order.
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rows[order[a]].ProjectedPoints > rows[order[b]].ProjectedPoints
	})
	for rank, i := range order {
		rows[i].ProjectedRank = rank + 1
	}

	lastRefresh, err := s.store.LastRefresh(ctx)
	if err != nil {
		s.log.Warn(ctx, "last refresh lookup failed", logger.Error(err))
	}

	metrics.ObserveStandingsCompute(time.Since(start).Seconds())
	return types.Standings{
		Rows:        rows,
		LastRefresh: lastRefresh,
		ComputedAt:  snap.TakenAt,
	}, nil
}

// RecordManualLine appends a manual benchmark-line observation. Prior
// observations are never touched; the history is the audit trail.
func (s *Service) RecordManualLine(ctx context.Context, teamID int64, week int, line float64, note string) (model.LineObservation, error) {
	if _, err := s.store.Team(ctx, teamID); err != nil {
		return model.LineObservation{}, err
	}
	if line <= 0 {
		return model.LineObservation{}, fmt.Errorf("line must be positive, got %v", line)
	}
	obs := model.LineObservation{
		TeamID: teamID,
		Week:   week,
		Line:   line,
		Source: "manual",
		Note:   note,
	}
	if err := s.store.AppendLineObservation(ctx, &obs); err != nil {
		return model.LineObservation{}, err
	}
	s.log.Info(ctx, "manual line recorded",
		logger.Int64("team_id", teamID),
		logger.Int("week", week),
		logger.Float64("line", line))
	return obs, nil
}

// LineHistory returns a team's benchmark-line observations, oldest first.
func (s *Service) LineHistory(ctx context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error) {
	if _, err := s.store.Team(ctx, teamID); err != nil {
		return nil, err
	}
	return s.store.LineHistory(ctx, teamID, lookbackWeeks)
}

// RunScheduler refreshes immediately and then on every tick until ctx is
// canceled. Lock contention inside Refresh makes overlapping schedules from
// multiple processes harmless.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
