package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/halfline/overunder/internal/adapters/repository/migrations"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/types"
	"github.com/halfline/overunder/pkg/logger"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// SQLiteStore persists league state in a single SQLite file. WAL mode keeps
// readers unblocked while a refresh transaction is in flight.
type SQLiteStore struct {
	db  *sql.DB
	log logger.Logger
}

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(s *SQLiteStore) {
		if log != nil {
			s.log = log
		}
	}
}

// Open opens (creating if needed) the store at path and applies migrations.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	// modernc passes pragmas through _pragma; _txlock makes write
	// transactions BEGIN IMMEDIATE so concurrent writers queue on the busy
	// timeout instead of failing mid-transaction.
	dsn := filepath.Clean(path) +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("store")
	}
	return s, nil
}

// DB exposes the underlying handle for collaborators that share the file,
// such as the refresh lease lock.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateParticipant inserts one participant and fills in its id.
func (s *SQLiteStore) CreateParticipant(ctx context.Context, p *model.Participant) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("participant name is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (name, draft_rank, created_at) VALUES (?, ?, ?)`,
		p.Name, p.DraftRank, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// CreateTeam inserts one team and fills in its id.
func (s *SQLiteStore) CreateTeam(ctx context.Context, t *model.Team) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("team name is required")
	}
	if !t.Category.Valid() {
		return fmt.Errorf("invalid category %q", t.Category)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (name, category, grouping, benchmark_total, provider_id, abbreviation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Name, string(t.Category), t.Grouping, t.BenchmarkTotal, t.ProviderID, t.Abbreviation, toMillis(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// CreateAssignment inserts one draft assignment and fills in its id.
func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *model.Assignment) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (participant_id, team_id, round, pick) VALUES (?, ?, ?, ?)`,
		a.ParticipantID, a.TeamID, a.Round, a.Pick)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

const teamColumns = `id, name, category, grouping, benchmark_total, provider_id, abbreviation, created_at`

func scanTeam(row interface{ Scan(...any) error }) (model.Team, error) {
	var (
		t  model.Team
		ms int64
	)
	err := row.Scan(&t.ID, &t.Name, (*string)(&t.Category), &t.Grouping,
		&t.BenchmarkTotal, &t.ProviderID, &t.Abbreviation, &ms)
	t.CreatedAt = fromMillis(ms)
	return t, err
}

// Team returns one team by id.
func (s *SQLiteStore) Team(ctx context.Context, id int64) (model.Team, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = ?`, id)
	t, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	return t, err
}

// TeamsByCategory returns all teams in a category, by name.
func (s *SQLiteStore) TeamsByCategory(ctx context.Context, cat model.Category) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE category = ? ORDER BY name`, string(cat))
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// UpsertGameResults applies one source's candidates in a single transaction.
//
// Dedup resolution per candidate, in order:
//   - match on (team, provider game id) when the id is present, otherwise on
//     (team, week, opponent);
//   - no match: insert;
//   - match with conflicting week/opponent for the same provider game id:
//     reject, keep existing (ErrIntegrity, logged, never fatal);
//   - match still non-final: update outcome fields once, mark final;
//   - match already final: skip, even if the outcome differs.
func (s *SQLiteStore) UpsertGameResults(ctx context.Context, candidates []model.GameResult) (UpsertStats, error) {
	var stats UpsertStats
	if len(candidates) == 0 {
		return stats, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range candidates {
		if err := s.upsertOne(ctx, tx, c, &stats); err != nil {
			return UpsertStats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertStats{}, fmt.Errorf("commit upsert tx: %w", err)
	}
	return stats, nil
}

type existingResult struct {
	id         int64
	week       int
	opponent   string
	won        bool
	qualifying bool
	final      bool
	gameType   string
}

func (s *SQLiteStore) upsertOne(ctx context.Context, tx *sql.Tx, c model.GameResult, stats *UpsertStats) error {
	var row *sql.Row
	if c.ProviderGameID != "" {
		row = tx.QueryRowContext(ctx,
			`SELECT id, week, opponent, won, qualifying, final, game_type
			 FROM game_results WHERE team_id = ? AND provider_game_id = ?`,
			c.TeamID, c.ProviderGameID)
	} else {
		row = tx.QueryRowContext(ctx,
			`SELECT id, week, opponent, won, qualifying, final, game_type
			 FROM game_results WHERE team_id = ? AND week = ? AND opponent = ?`,
			c.TeamID, c.Week, c.Opponent)
	}

	var ex existingResult
	err := row.Scan(&ex.id, &ex.week, &ex.opponent, &ex.won, &ex.qualifying, &ex.final, &ex.gameType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := toMillis(time.Now().UTC())
		_, err := tx.ExecContext(ctx,
			`INSERT INTO game_results
			 (team_id, week, opponent, won, game_type, qualifying, final, provider_game_id, played_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.TeamID, c.Week, c.Opponent, c.Won, string(c.Type), c.Qualifying, c.Final,
			c.ProviderGameID, toMillis(c.PlayedAt), now, now)
		if err != nil {
			return fmt.Errorf("insert game result: %w", err)
		}
		stats.Added++
		return nil
	case err != nil:
		return fmt.Errorf("lookup game result: %w", err)
	}

	// Week and opponent are immutable parts of the dedup key.
	if c.ProviderGameID != "" && (ex.week != c.Week || ex.opponent != c.Opponent) {
		stats.Rejected++
		s.log.Warn(ctx, "rejecting conflicting game record",
			logger.String("provider_game_id", c.ProviderGameID),
			logger.Int("existing_week", ex.week),
			logger.Int("incoming_week", c.Week),
			logger.Error(fmt.Errorf("%w: week/opponent mismatch", ErrIntegrity)))
		return nil
	}

	unchanged := ex.won == c.Won && ex.qualifying == c.Qualifying && ex.gameType == string(c.Type) && ex.final == c.Final
	if unchanged || ex.final {
		// A final record never changes again; re-running a refresh with the
		// same feed leaves the store byte-identical.
		stats.Skipped++
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE game_results SET won = ?, qualifying = ?, game_type = ?, final = ?, updated_at = ?
		 WHERE id = ?`,
		c.Won, c.Qualifying, string(c.Type), c.Final, toMillis(time.Now().UTC()), ex.id)
	if err != nil {
		return fmt.Errorf("update game result: %w", err)
	}
	stats.Updated++
	return nil
}

// AppendLineObservation adds one observation to a team's line history.
func (s *SQLiteStore) AppendLineObservation(ctx context.Context, obs *model.LineObservation) error {
	if obs.TeamID == 0 {
		return errors.New("team id is required")
	}
	if obs.Created.IsZero() {
		obs.Created = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO line_observations (team_id, week, line, original, source, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.TeamID, obs.Week, obs.Line, obs.Original, obs.Source, obs.Note, toMillis(obs.Created))
	if err != nil {
		return fmt.Errorf("insert line observation: %w", err)
	}
	obs.ID, err = res.LastInsertId()
	return err
}

// LineHistory returns the team's observations, oldest first.
func (s *SQLiteStore) LineHistory(ctx context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error) {
	query := `SELECT id, team_id, week, line, original, source, note, created_at
	          FROM line_observations WHERE team_id = ?`
	args := []any{teamID}
	if lookbackWeeks > 0 {
		query += ` AND week >= (SELECT COALESCE(MAX(week), 0) FROM line_observations WHERE team_id = ?) - ?`
		args = append(args, teamID, lookbackWeeks)
	}
	query += ` ORDER BY week, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query line history: %w", err)
	}
	defer rows.Close()

	var out []model.LineObservation
	for rows.Next() {
		var (
			obs model.LineObservation
			ms  int64
		)
		if err := rows.Scan(&obs.ID, &obs.TeamID, &obs.Week, &obs.Line, &obs.Original,
			&obs.Source, &obs.Note, &ms); err != nil {
			return nil, err
		}
		obs.Created = fromMillis(ms)
		out = append(out, obs)
	}
	return out, rows.Err()
}

// Snapshot loads the whole league in one read transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &model.Snapshot{
		Teams:   map[int64]model.Team{},
		Rosters: map[int64][]int64{},
		Picks:   map[int64]model.Assignment{},
		Results: map[int64][]model.GameResult{},
		Lines:   map[int64][]model.LineObservation{},
		TakenAt: time.Now().UTC(),
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, draft_rank, created_at FROM participants ORDER BY draft_rank`)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	for rows.Next() {
		var (
			p  model.Participant
			ms int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.DraftRank, &ms); err != nil {
			rows.Close()
			return nil, err
		}
		p.CreatedAt = fromMillis(ms)
		snap.Participants = append(snap.Participants, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Teams[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT id, participant_id, team_id, round, pick FROM assignments ORDER BY pick`)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.ParticipantID, &a.TeamID, &a.Round, &a.Pick); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Rosters[a.ParticipantID] = append(snap.Rosters[a.ParticipantID], a.TeamID)
		snap.Picks[a.TeamID] = a
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT id, team_id, week, opponent, won, game_type, qualifying, final, provider_game_id, played_at, created_at, updated_at
		 FROM game_results ORDER BY team_id, week, id`)
	if err != nil {
		return nil, fmt.Errorf("query game results: %w", err)
	}
	for rows.Next() {
		var (
			g                  model.GameResult
			playedMs, cMs, uMs int64
		)
		if err := rows.Scan(&g.ID, &g.TeamID, &g.Week, &g.Opponent, &g.Won,
			(*string)(&g.Type), &g.Qualifying, &g.Final, &g.ProviderGameID,
			&playedMs, &cMs, &uMs); err != nil {
			rows.Close()
			return nil, err
		}
		g.PlayedAt = fromMillis(playedMs)
		g.CreatedAt = fromMillis(cMs)
		g.UpdatedAt = fromMillis(uMs)
		snap.Results[g.TeamID] = append(snap.Results[g.TeamID], g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT id, team_id, week, line, original, source, note, created_at
		 FROM line_observations ORDER BY team_id, week, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query line observations: %w", err)
	}
	for rows.Next() {
		var (
			obs model.LineObservation
			ms  int64
		)
		if err := rows.Scan(&obs.ID, &obs.TeamID, &obs.Week, &obs.Line, &obs.Original,
			&obs.Source, &obs.Note, &ms); err != nil {
			rows.Close()
			return nil, err
		}
		obs.Created = fromMillis(ms)
		snap.Lines[obs.TeamID] = append(snap.Lines[obs.TeamID], obs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snap, tx.Commit()
}

// RecordRefresh logs one completed refresh cycle.
func (s *SQLiteStore) RecordRefresh(ctx context.Context, report types.RefreshReport) error {
	var errTexts []string
	for _, src := range report.Sources {
		if src.Error != "" {
			errTexts = append(errTexts, src.Source+": "+src.Error)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_log (id, started_at, finished_at, added, updated, skipped, errors)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, toMillis(report.StartedAt), toMillis(report.FinishedAt),
		report.Added, report.Updated, report.SkippedRecords, strings.Join(errTexts, "; "))
	if err != nil {
		return fmt.Errorf("insert refresh log: %w", err)
	}
	return nil
}

// LastRefresh returns when the most recent refresh with no source errors
// finished. Zero time means no successful refresh yet.
func (s *SQLiteStore) LastRefresh(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(finished_at), 0) FROM refresh_log WHERE errors = ''`)
	var ms int64
	if err := row.Scan(&ms); err != nil {
		return time.Time{}, fmt.Errorf("query last refresh: %w", err)
	}
	return fromMillis(ms), nil
}
