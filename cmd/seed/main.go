// Command seed loads a league definition from a JSON file into the store:
// participants, teams, draft assignments, and each team's opening win-total
// line. It is meant to run once before the season starts.
//
// Usage: seed -file league.json [-db overunder.db]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halfline/overunder/internal/adapters/repository"
	"github.com/halfline/overunder/internal/config"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/pkg/logger"
)

// leagueFile mirrors the JSON seed schema.
type leagueFile struct {
	Participants []seedParticipant `json:"participants"`
	Teams        []seedTeam        `json:"teams"`
}

type seedParticipant struct {
	Name      string     `json:"name"`
	DraftRank int        `json:"draft_rank"`
	Picks     []seedPick `json:"picks"`
}

type seedPick struct {
	Team  string `json:"team"`
	Round int    `json:"round"`
	Pick  int    `json:"pick"`
}

type seedTeam struct {
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Grouping     string  `json:"grouping"`
	Line         float64 `json:"line"`
	ProviderID   string  `json:"provider_id"`
	Abbreviation string  `json:"abbreviation"`
}

func main() {
	file := flag.String("file", "league.json", "path to the league seed file")
	dbPath := flag.String("db", "", "SQLite path; defaults to the configured db_path")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	path := cfg.DBPath
	if *dbPath != "" {
		path = *dbPath
	}

	store, err := repository.Open(path, repository.WithLogger(log.Named("store")))
	if err != nil {
		log.Error(ctx, "failed to open store", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	if err := seed(ctx, store, cfg, *file); err != nil {
		log.Error(ctx, "seed failed", logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "seed complete", logger.String("file", *file))
}

func seed(ctx context.Context, store repository.Store, cfg *config.Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var league leagueFile
	if err := json.Unmarshal(raw, &league); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	if err := validateLeague(league, cfg); err != nil {
		return err
	}

	// Teams first, so picks can resolve to team ids. Every team gets
	// exactly one opening line observation; later observations come from
	// manual updates, never from re-seeding.
	teamIDs := make(map[string]int64, len(league.Teams))
	for _, st := range league.Teams {
		team := model.Team{
			Name:           st.Name,
			Category:       model.Category(st.Category),
			Grouping:       st.Grouping,
			BenchmarkTotal: st.Line,
			ProviderID:     st.ProviderID,
			Abbreviation:   st.Abbreviation,
		}
		if err := store.CreateTeam(ctx, &team); err != nil {
			return fmt.Errorf("create team %q: %w", st.Name, err)
		}
		teamIDs[st.Name] = team.ID

		if st.Line > 0 {
			obs := model.LineObservation{
				TeamID:   team.ID,
				Week:     0,
				Line:     st.Line,
				Original: true,
				Source:   "seed",
			}
			if err := store.AppendLineObservation(ctx, &obs); err != nil {
				return fmt.Errorf("record opening line for %q: %w", st.Name, err)
			}
		}
	}

	for _, sp := range league.Participants {
		participant := model.Participant{Name: sp.Name, DraftRank: sp.DraftRank}
		if err := store.CreateParticipant(ctx, &participant); err != nil {
			return fmt.Errorf("create participant %q: %w", sp.Name, err)
		}
		for _, pick := range sp.Picks {
			teamID, ok := teamIDs[pick.Team]
			if !ok {
				return fmt.Errorf("participant %q picks unknown team %q", sp.Name, pick.Team)
			}
			assignment := model.Assignment{
				ParticipantID: participant.ID,
				TeamID:        teamID,
				Round:         pick.Round,
				Pick:          pick.Pick,
			}
			if err := store.CreateAssignment(ctx, &assignment); err != nil {
				return fmt.Errorf("assign %q to %q: %w", pick.Team, sp.Name, err)
			}
		}
	}
	return nil
}

// validateLeague enforces the roster quota before anything is written.
func validateLeague(league leagueFile, cfg *config.Config) error {
	categories := make(map[string]model.Category, len(league.Teams))
	for _, st := range league.Teams {
		cat := model.Category(st.Category)
		if !cat.Valid() {
			return fmt.Errorf("team %q has invalid category %q", st.Name, st.Category)
		}
		if _, dup := categories[st.Name]; dup {
			return fmt.Errorf("duplicate team %q", st.Name)
		}
		categories[st.Name] = cat
	}

	for _, sp := range league.Participants {
		var college, pro int
		for _, pick := range sp.Picks {
			switch categories[pick.Team] {
			case model.CategoryCollege:
				college++
			case model.CategoryPro:
				pro++
			default:
				return fmt.Errorf("participant %q picks unknown team %q", sp.Name, pick.Team)
			}
		}
		if college != cfg.Roster.CollegeTeams || pro != cfg.Roster.ProTeams {
			return fmt.Errorf("participant %q roster is %d college + %d pro, want %d + %d",
				sp.Name, college, pro, cfg.Roster.CollegeTeams, cfg.Roster.ProTeams)
		}
	}
	return nil
}
