package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	api "github.com/halfline/overunder/internal/adapters/http/api"
	repository "github.com/halfline/overunder/internal/adapters/repository"
	"github.com/halfline/overunder/internal/domain/model"
	"github.com/halfline/overunder/internal/domain/types"
	"github.com/halfline/overunder/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

// stubService implements api.Dependencies with canned answers.
type stubService struct {
	standings    types.Standings
	standingsErr error

	report types.RefreshReport

	history    []model.LineObservation
	historyErr error

	recorded  *model.LineObservation
	recordErr error
}

func (s *stubService) Standings(_ context.Context) (types.Standings, error) {
	return s.standings, s.standingsErr
}

func (s *stubService) Refresh(_ context.Context) types.RefreshReport {
	return s.report
}

func (s *stubService) LineHistory(_ context.Context, teamID int64, lookbackWeeks int) ([]model.LineObservation, error) {
	return s.history, s.historyErr
}

func (s *stubService) RecordManualLine(_ context.Context, teamID int64, week int, line float64, note string) (model.LineObservation, error) {
	if s.recordErr != nil {
		return model.LineObservation{}, s.recordErr
	}
	obs := model.LineObservation{ID: 1, TeamID: teamID, Week: week, Line: line, Note: note, Source: "manual"}
	s.recorded = &obs
	return obs, nil
}

func newTestServer(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func TestHealthz(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newTestServer(&stubService{})

		Convey("When GET /healthz", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then it answers ok", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})
	})
}

func TestStandingsEndpoint(t *testing.T) {
	Convey("Given a service with standings", t, func() {
		svc := &stubService{standings: types.Standings{
			Rows: []types.StandingRow{
				{Rank: 1, Participant: "alice", Points: 14},
				{Rank: 2, Participant: "bob", Points: 9},
			},
			ComputedAt: time.Date(2025, 10, 5, 12, 0, 0, 0, time.UTC),
		}}
		mux := newTestServer(svc)

		Convey("When GET /standings", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/standings", nil))

			Convey("Then the rows are returned as JSON", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")

				var got types.Standings
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got.Rows, ShouldHaveLength, 2)
				So(got.Rows[0].Participant, ShouldEqual, "alice")
			})
		})

		Convey("When the method is not GET", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/standings", nil))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the service fails", func() {
			svc.standingsErr = errors.New("snapshot broken")
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/standings", nil))

			Convey("Then a 500 with the error body is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
				So(rec.Body.String(), ShouldContainSubstring, "internal_error")
			})
		})
	})
}

func TestRefreshEndpoint(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		Convey("When a refresh cycle succeeds", func() {
			svc := &stubService{report: types.RefreshReport{ID: "cycle-1", Added: 3}}
			mux := newTestServer(svc)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			Convey("Then the report comes back with 200", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got types.RefreshReport
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got.Added, ShouldEqual, 3)
			})
		})

		Convey("When the refresh lost the lock race", func() {
			svc := &stubService{report: types.RefreshReport{
				Skipped:    true,
				SkipReason: "refresh already in progress",
			}}
			mux := newTestServer(svc)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			Convey("Then 409 carries the skip reason", func() {
				So(rec.Code, ShouldEqual, http.StatusConflict)
				So(rec.Body.String(), ShouldContainSubstring, "already in progress")
			})
		})

		Convey("When every source failed", func() {
			svc := &stubService{report: types.RefreshReport{
				Sources: []types.SourceReport{{Source: "nfl", Error: "down"}},
			}}
			mux := newTestServer(svc)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh", nil))

			So(rec.Code, ShouldEqual, http.StatusBadGateway)
		})

		Convey("When the method is GET", func() {
			mux := newTestServer(&stubService{})

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refresh", nil))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestLinesEndpoint(t *testing.T) {
	Convey("Given a service with line history", t, func() {
		svc := &stubService{history: []model.LineObservation{
			{ID: 1, TeamID: 7, Week: 0, Line: 8.5, Original: true, Source: "seed"},
			{ID: 2, TeamID: 7, Week: 4, Line: 9.5, Source: "manual"},
		}}
		mux := newTestServer(svc)

		Convey("When GET /lines/7", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lines/7", nil))

			Convey("Then the history is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var got []model.LineObservation
				So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
				So(got, ShouldHaveLength, 2)
			})
		})

		Convey("When the lookback parameter is invalid", func() {
			for _, q := range []string{"lookback=0", "lookback=abc", "lookback=999"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lines/7?"+q, nil))

				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the team id is missing or malformed", func() {
			for _, path := range []string{"/lines/", "/lines/abc", "/lines/-3", "/lines/7/extra"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the team does not exist", func() {
			svc.historyErr = fmt.Errorf("team 99: %w", repository.ErrNotFound)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lines/99", nil))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a service accepting manual lines", t, func() {
		svc := &stubService{}
		mux := newTestServer(svc)

		Convey("When POST /lines/7 with a valid body", func() {
			body := strings.NewReader(`{"week":5,"line":9.5,"note":"injury news"}`)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lines/7", body))

			Convey("Then the observation is created", func() {
				So(rec.Code, ShouldEqual, http.StatusCreated)
				So(svc.recorded, ShouldNotBeNil)
				So(svc.recorded.TeamID, ShouldEqual, 7)
				So(svc.recorded.Line, ShouldEqual, 9.5)
			})
		})

		Convey("When the body is not JSON", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lines/7", strings.NewReader("not json")))

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the line is not positive", func() {
			body := strings.NewReader(`{"week":5,"line":0}`)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lines/7", body))

			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the team does not exist", func() {
			svc.recordErr = fmt.Errorf("team 99: %w", repository.ErrNotFound)
			body := strings.NewReader(`{"week":5,"line":9.5}`)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/lines/99", body))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the method is DELETE", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/lines/7", nil))

			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}
