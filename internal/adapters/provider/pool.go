package provider

import (
	"context"
	"sync"
	"time"

	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/pkg/logger"
)

// Fetcher abstracts the schedule fetch for the pool; satisfied by *Client.
type Fetcher interface {
	TeamSchedule(ctx context.Context, sportPath, providerTeamID string, season int) (normalize.SchedulePayload, error)
}

// FetchResult pairs one team with its payload or fetch error.
type FetchResult struct {
	Team    model.Team
	Payload normalize.SchedulePayload
	Err     error
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of concurrent fetch workers.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRequestDelay sets the pause each worker takes between requests, the
// rate limit the feed asks of polite clients.
func WithRequestDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.requestDelay = d
		}
	}
}

// WithPoolLogger sets a custom logger.
func WithPoolLogger(log logger.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// Pool fans schedule fetches for one source across a bounded set of workers.
// Workers stop early when ctx is canceled; teams not fetched simply do not
// appear in the results.
type Pool struct {
	fetcher      Fetcher
	workers      int
	requestDelay time.Duration
	log          logger.Logger
}

// NewPool creates a fetch pool over the given fetcher.
func NewPool(fetcher Fetcher, opts ...PoolOption) *Pool {
	p := &Pool{
		fetcher:      fetcher,
		workers:      4,
		requestDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Get().Named("fetchpool")
	}
	return p
}

// FetchAll fetches every team's schedule and returns one result per team
// attempted, in no particular order.
func (p *Pool) FetchAll(ctx context.Context, sportPath string, season int, teams []model.Team) []FetchResult {
	jobs := make(chan model.Team)
	results := make(chan FetchResult, len(teams))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.run(ctx, sportPath, season, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, t := range teams {
			select {
			case <-ctx.Done():
				return
			case jobs <- t:
			}
		}
	}()

	wg.Wait()
	close(results)

	out := make([]FetchResult, 0, len(teams))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (p *Pool) run(ctx context.Context, sportPath string, season int, jobs <-chan model.Team, results chan<- FetchResult) {
	for team := range jobs {
		if team.ProviderID == "" {
			p.log.Warn(ctx, "team has no provider id, skipping",
				logger.String("team", team.Name))
			continue
		}
		payload, err := p.fetcher.TeamSchedule(ctx, sportPath, team.ProviderID, season)
		results <- FetchResult{Team: team, Payload: payload, Err: err}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.requestDelay):
		}
	}
}
