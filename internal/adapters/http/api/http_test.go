package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/seatalloc/internal/adapters/http/api"
	service "github.com/okian/seatalloc/internal/app"
	"github.com/okian/seatalloc/internal/domain/model"
	"github.com/okian/seatalloc/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func newServer(ctx context.Context) (*http.ServeMux, *service.Service) {
	svc := service.New()
	So(svc.Start(ctx), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux, svc
}

func TestServer_Register(t *testing.T) {
	Convey("Given a new API server", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
		svc := service.New()
		api.NewServer(svc, stats).Register(ctx, mux)

		Convey("Then health endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("Then stats endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then metrics endpoint should expose the registry", func() {
			_ = do(mux, http.MethodGet, "/healthz", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "seatalloc_")
		})

		Convey("Then unknown routes are not found", func() {
			w := do(mux, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then a stopped service reports unavailable", func() {
			w := do(mux, http.MethodPost, "/api/v1/elective/allocations", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestAllocationFlow(t *testing.T) {
	Convey("Given a running server with a catalog and roster", t, func() {
		ctx := context.Background()
		mux, svc := newServer(ctx)
		defer func() { _ = svc.Stop(ctx) }()

		So(do(mux, http.MethodPut, "/api/v1/electives/resources/X", `{"capacity":1,"eligibility_threshold":50}`).Code, ShouldEqual, http.StatusOK)
		So(do(mux, http.MethodPut, "/api/v1/elective/resources/Y", `{"name":"Yoga","capacity":1}`).Code, ShouldEqual, http.StatusOK)
		for id, pct := range map[string]string{"A": "90", "B": "80", "C": "40"} {
			w := do(mux, http.MethodPut, "/api/v1/elective/applicants/"+id, `{"academic":{"percentage":`+pct+`}}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		}
		So(do(mux, http.MethodPost, "/api/v1/elective/applicants/A/preferences", `{"preferences":[{"rank":1,"resource_id":"X"},{"rank":2,"resource_id":"Y"}]}`).Code, ShouldEqual, http.StatusCreated)
		So(do(mux, http.MethodPost, "/api/v1/elective/applicants/B/preferences", `{"preferences":[{"rank":1,"resource_id":"X"},{"rank":2,"resource_id":"Y"}]}`).Code, ShouldEqual, http.StatusCreated)
		So(do(mux, http.MethodPost, "/api/v1/elective/applicants/C/preferences", `{"preferences":[{"rank":1,"resource_id":"X"}]}`).Code, ShouldEqual, http.StatusCreated)

		Convey("When a pass is run synchronously", func() {
			w := do(mux, http.MethodPost, "/api/v1/elective/allocations", "")

			Convey("Then the report is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var report model.AllocationReport
				decode(w, &report)
				So(report.AllocatedCount, ShouldEqual, 3)
				So(report.FallbackCount, ShouldEqual, 1)
				So(report.OverCapacity, ShouldEqual, 1)

				latest := do(mux, http.MethodGet, "/api/v1/elective/allocations/latest", "")
				So(latest.Code, ShouldEqual, http.StatusOK)
			})

			Convey("And the applicant confirms", func() {
				first := do(mux, http.MethodPost, "/api/v1/elective/applicants/B/confirm", "")
				second := do(mux, http.MethodPost, "/api/v1/elective/applicants/B/confirm", "")

				Convey("Then the first succeeds and the second conflicts", func() {
					So(first.Code, ShouldEqual, http.StatusOK)
					var st model.AssignmentStatus
					decode(first, &st)
					So(st.ResourceID, ShouldEqual, "Y")
					So(st.State, ShouldEqual, model.StateConfirmed)

					So(second.Code, ShouldEqual, http.StatusConflict)
					So(second.Body.String(), ShouldContainSubstring, "already_confirmed")
				})
			})

			Convey("And allotments are listed", func() {
				w := do(mux, http.MethodGet, "/api/v1/elective/allotments", "")
				var all []model.AssignmentStatus
				decode(w, &all)

				Convey("Then every applicant is included", func() {
					So(w.Code, ShouldEqual, http.StatusOK)
					So(len(all), ShouldEqual, 3)
				})
			})

			Convey("And a referenced resource is deleted", func() {
				w := do(mux, http.MethodDelete, "/api/v1/elective/resources/X", "")

				Convey("Then it conflicts", func() {
					So(w.Code, ShouldEqual, http.StatusConflict)
					So(w.Body.String(), ShouldContainSubstring, "resource_in_use")
				})
			})
		})

		Convey("When a pass is run asynchronously", func() {
			w := do(mux, http.MethodPost, "/api/v1/elective/allocations?async=true", "")

			Convey("Then it is accepted with a status location", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var st model.PassState
				decode(w, &st)
				So(st.ID, ShouldNotBeEmpty)
				So(w.Header().Get("Location"), ShouldEqual, "/api/v1/elective/allocations/"+st.ID)

				status := do(mux, http.MethodGet, "/api/v1/elective/allocations/"+st.ID, "")
				So(status.Code, ShouldEqual, http.StatusOK)

				other := do(mux, http.MethodGet, "/api/v1/life_skill/allocations/"+st.ID, "")
				So(other.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the category is locked", func() {
			So(do(mux, http.MethodPost, "/api/v1/elective/lock", "").Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodPost, "/api/v1/elective/allocations", "")
			gate := do(mux, http.MethodGet, "/api/v1/elective/lock", "")

			Convey("Then passes are refused with 423", func() {
				So(w.Code, ShouldEqual, http.StatusLocked)
				So(gate.Body.String(), ShouldContainSubstring, `"open":false`)
				So(do(mux, http.MethodPost, "/api/v1/elective/unlock", "").Code, ShouldEqual, http.StatusOK)
				So(do(mux, http.MethodPost, "/api/v1/elective/allocations", "").Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When an applicant resubmits preferences", func() {
			w := do(mux, http.MethodPost, "/api/v1/elective/applicants/A/preferences", `{"preferences":[{"rank":1,"resource_id":"Y"}]}`)

			Convey("Then it conflicts", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(w.Body.String(), ShouldContainSubstring, "already_submitted")
			})
		})

		Convey("When a preference list is malformed", func() {
			So(do(mux, http.MethodPut, "/api/v1/elective/applicants/D", `{}`).Code, ShouldEqual, http.StatusOK)
			w := do(mux, http.MethodPost, "/api/v1/elective/applicants/D/preferences", `{"preferences":[{"rank":2,"resource_id":"X"}]}`)

			Convey("Then the issues are reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "validation_failed")
				So(w.Body.String(), ShouldContainSubstring, "issues")
			})
		})

		Convey("When a body has unknown fields", func() {
			w := do(mux, http.MethodPut, "/api/v1/elective/resources/Z", `{"seats":3}`)

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(w.Body.String(), ShouldContainSubstring, "bad_request")
			})
		})

		Convey("When the category is unknown", func() {
			w := do(mux, http.MethodGet, "/api/v1/sports/resources", "")

			Convey("Then it is a validation error", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown applicant is looked up", func() {
			w := do(mux, http.MethodGet, "/api/v1/elective/applicants/nobody/assignment", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a snapshot is imported", func() {
			w := do(mux, http.MethodPut, "/api/v1/life-skills/snapshot", `{
				"resources":[{"id":"yoga","capacity":1}],
				"applicants":[{"id":"s1","merit_score":70,"preferences":[{"rank":1,"resource_id":"yoga"}]}]
			}`)

			Convey("Then the category can be allocated", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				run := do(mux, http.MethodPost, "/api/v1/life_skill/allocations", "")
				So(run.Code, ShouldEqual, http.StatusOK)
				st := do(mux, http.MethodGet, "/api/v1/life_skill/applicants/s1/assignment", "")
				So(st.Body.String(), ShouldContainSubstring, `"resource_id":"yoga"`)
			})
		})
	})
}
