package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	provider "github.com/halfline/overunder/internal/adapters/provider"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/normalize"
	"github.com/halfline/overunder/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

const scheduleBody = `{
	"team": {"id": "12", "displayName": "Kansas City Chiefs"},
	"events": [{
		"id": "401547401",
		"date": "2025-09-07T17:00:00Z",
		"seasonType": {"id": "2"},
		"week": {"number": 1},
		"competitions": [{
			"status": {"type": {"completed": true}},
			"competitors": [
				{"team": {"id": "12", "displayName": "Kansas City Chiefs"}, "score": {"value": 27}},
				{"team": {"id": "20", "displayName": "Detroit Lions"}, "score": {"value": 20}}
			]
		}]
	}]
}`

const emptyScheduleBody = `{"team": {"id": "12", "displayName": "Kansas City Chiefs"}, "events": []}`

func TestTeamSchedule(t *testing.T) {
	Convey("Given a schedule feed serving both phases", t, func() {
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			if r.URL.Query().Get("seasontype") == "3" {
				fmt.Fprint(w, emptyScheduleBody)
				return
			}
			fmt.Fprint(w, scheduleBody)
		}))
		defer srv.Close()

		client := provider.New(provider.WithBaseURL(srv.URL))

		Convey("When fetching a team schedule", func() {
			payload, err := client.TeamSchedule(context.Background(), "nfl", "12", 2025)

			Convey("Then both phases are fetched and flattened", func() {
				So(err, ShouldBeNil)
				So(requests.Load(), ShouldEqual, 2)
				So(payload.TeamProviderID, ShouldEqual, "12")
				So(payload.TeamName, ShouldEqual, "Kansas City Chiefs")
				So(payload.Events, ShouldHaveLength, 1)

				ev := payload.Events[0]
				So(ev.ProviderGameID, ShouldEqual, "401547401")
				So(ev.Week, ShouldEqual, 1)
				So(ev.SeasonPhase, ShouldEqual, 2)
				So(ev.Completed, ShouldBeTrue)
				So(ev.Opponent, ShouldEqual, "Detroit Lions")
				So(ev.PointsFor, ShouldEqual, 27)
				So(ev.PointsAgainst, ShouldEqual, 20)
				So(ev.Date.Equal(time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})
	})

	Convey("Given a feed that fails once then recovers", t, func() {
		var requests atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requests.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, emptyScheduleBody)
		}))
		defer srv.Close()

		client := provider.New(
			provider.WithBaseURL(srv.URL),
			provider.WithRetry(provider.RetryConfig{MaxRetries: 3, Delay: time.Millisecond}),
		)

		Convey("When fetching", func() {
			payload, err := client.TeamSchedule(context.Background(), "nfl", "12", 2025)

			Convey("Then the retry recovers the fetch", func() {
				So(err, ShouldBeNil)
				So(payload.TeamName, ShouldEqual, "Kansas City Chiefs")
				So(requests.Load(), ShouldBeGreaterThanOrEqualTo, 3)
			})
		})
	})

	Convey("Given a feed that always fails", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := provider.New(
			provider.WithBaseURL(srv.URL),
			provider.WithRetry(provider.RetryConfig{MaxRetries: 2, Delay: time.Millisecond}),
		)

		Convey("When fetching", func() {
			_, err := client.TeamSchedule(context.Background(), "nfl", "12", 2025)

			Convey("Then the retry budget exhausts into ErrUnavailable", func() {
				So(errors.Is(err, provider.ErrUnavailable), ShouldBeTrue)
			})
		})
	})
}

// recordingFetcher counts calls and records which teams were asked for.
type recordingFetcher struct {
	calls atomic.Int32
}

func (f *recordingFetcher) TeamSchedule(_ context.Context, _, providerTeamID string, _ int) (normalize.SchedulePayload, error) {
	f.calls.Add(1)
	return normalize.SchedulePayload{TeamProviderID: providerTeamID}, nil
}

func TestFetchPool(t *testing.T) {
	Convey("Given a pool over a recording fetcher", t, func() {
		fetcher := &recordingFetcher{}
		pool := provider.NewPool(fetcher,
			provider.WithWorkers(3),
			provider.WithRequestDelay(0),
		)

		teams := []model.Team{
			{ID: 1, Name: "A", ProviderID: "1"},
			{ID: 2, Name: "B", ProviderID: "2"},
			{ID: 3, Name: "C", ProviderID: "3"},
			{ID: 4, Name: "D", ProviderID: "4"},
		}

		Convey("When fetching all teams", func() {
			results := pool.FetchAll(context.Background(), "nfl", 2025, teams)

			Convey("Then every team produces one result", func() {
				So(results, ShouldHaveLength, 4)
				So(fetcher.calls.Load(), ShouldEqual, 4)

				seen := map[int64]bool{}
				for _, r := range results {
					So(r.Err, ShouldBeNil)
					seen[r.Team.ID] = true
				}
				So(seen, ShouldHaveLength, 4)
			})
		})

		Convey("When a team has no provider id", func() {
			noID := append(teams, model.Team{ID: 5, Name: "E"})
			results := pool.FetchAll(context.Background(), "nfl", 2025, noID)

			Convey("Then it is skipped without a result", func() {
				So(results, ShouldHaveLength, 4)
				So(fetcher.calls.Load(), ShouldEqual, 4)
			})
		})
	})
}
