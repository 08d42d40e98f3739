// Package provider fetches game results from the external schedule API and
// decodes them into normalizer payloads.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/pkg/logger"
	"github.com/halfline/overunder/pkg/metrics"
)

// Season phase codes requested from the feed. Regular season and postseason
// are fetched separately because the feed only returns the current phase by
// default.
var seasonPhases = []int{2, 3}

// RetryConfig bounds the fetch retry loop.
type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration // base delay; backoff is Delay * attempt
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the feed base URL.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(rc RetryConfig) Option {
	return func(c *Client) {
		if rc.MaxRetries > 0 {
			c.retry.MaxRetries = rc.MaxRetries
		}
		if rc.Delay > 0 {
			c.retry.Delay = rc.Delay
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// Client fetches team schedules. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryConfig
	log        logger.Logger
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    "https://site.api.espn.com/apis/site/v2/sports/football",
		retry:      RetryConfig{MaxRetries: 3, Delay: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("provider")
	}
	return c
}

// Wire shapes for the schedule feed. Only the fields the normalizer needs.
type wireTeam struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type wireCompetitor struct {
	Team  wireTeam `json:"team"`
	Score struct {
		Value float64 `json:"value"`
	} `json:"score"`
}

type wireCompetition struct {
	Status struct {
		Type struct {
			Completed bool `json:"completed"`
		} `json:"type"`
	} `json:"status"`
	Notes []struct {
		Headline string `json:"headline"`
	} `json:"notes"`
	Competitors []wireCompetitor `json:"competitors"`
}

type wireEvent struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	SeasonType struct {
		ID json.Number `json:"id"`
	} `json:"seasonType"`
	Week struct {
		Number int `json:"number"`
	} `json:"week"`
	Competitions []wireCompetition `json:"competitions"`
}

type scheduleResponse struct {
	Team   wireTeam    `json:"team"`
	Events []wireEvent `json:"events"`
}

// TeamSchedule fetches one team's full-season schedule (regular season and
// postseason) and flattens it into a normalizer payload.
func (c *Client) TeamSchedule(ctx context.Context, sportPath, providerTeamID string, season int) (normalize.SchedulePayload, error) {
	payload := normalize.SchedulePayload{TeamProviderID: providerTeamID}

	for _, phase := range seasonPhases {
		url := fmt.Sprintf("%s/%s/teams/%s/schedule?season=%d&seasontype=%d",
			c.baseURL, sportPath, providerTeamID, season, phase)
		resp, err := c.fetchWithRetry(ctx, url)
		if err != nil {
			return normalize.SchedulePayload{}, err
		}
		payload.TeamName = resp.Team.DisplayName
		for _, ev := range resp.Events {
			payload.Events = append(payload.Events, flattenEvent(providerTeamID, phase, ev))
		}
	}
	return payload, nil
}

func flattenEvent(providerTeamID string, phase int, ev wireEvent) normalize.ScheduleEvent {
	out := normalize.ScheduleEvent{
		ProviderGameID: ev.ID,
		Week:           ev.Week.Number,
		SeasonPhase:    phase,
	}
	if st, err := ev.SeasonType.ID.Int64(); err == nil && st > 0 {
		out.SeasonPhase = int(st)
	}
	if ts, err := time.Parse(time.RFC3339, ev.Date); err == nil {
		out.Date = ts
	}
	if len(ev.Competitions) == 0 {
		return out
	}
	comp := ev.Competitions[0]
	out.Completed = comp.Status.Type.Completed
	if len(comp.Notes) > 0 {
		out.Label = comp.Notes[0].Headline
	}
	for _, competitor := range comp.Competitors {
		if competitor.Team.ID == providerTeamID {
			out.PointsFor = competitor.Score.Value
		} else {
			out.Opponent = competitor.Team.DisplayName
			out.PointsAgainst = competitor.Score.Value
		}
	}
	return out
}

// fetchWithRetry performs the GET with a bounded retry loop and linear
// backoff. Exhausting the budget degrades to ErrUnavailable; the caller
// continues the cycle without this team's data.
func (c *Client) fetchWithRetry(ctx context.Context, url string) (*scheduleResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.retry.Delay * time.Duration(attempt-1)):
			}
		}
		resp, err := c.fetchOnce(ctx, url)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		c.log.Warn(ctx, "schedule fetch failed",
			logger.String("url", url),
			logger.Int("attempt", attempt),
			logger.Error(err))
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*scheduleResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveProviderRequest(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var decoded scheduleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &decoded, nil
}
