// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/seatalloc/internal/domain/model"
)

// maxBodyBytes caps request bodies; snapshots are the largest payload.
const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AllocationDependencies
	ApplicantDependencies
	ResourceDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	allocationHandler *AllocationHandler
	applicantHandler  *ApplicantHandler
	resourceHandler   *ResourceHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(statsProvider),
		allocationHandler: NewAllocationHandler(deps),
		applicantHandler:  NewApplicantHandler(deps),
		resourceHandler:   NewResourceHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	routes := []struct {
		pattern  string
		endpoint string
		handler  http.HandlerFunc
	}{
		{"GET /healthz", "healthz", s.healthHandler.HandleHealth},
		{"GET /metrics", "metrics", s.healthHandler.HandleMetrics},
		{"GET /stats", "stats", s.statsHandler.HandleStats},

		{"POST /api/v1/{category}/allocations", "allocations", s.allocationHandler.HandleRun},
		{"GET /api/v1/{category}/allocations/latest", "allocations_latest", s.allocationHandler.HandleLatest},
		{"GET /api/v1/{category}/allocations/{passID}", "allocation_status", s.allocationHandler.HandleStatus},
		{"GET /api/v1/{category}/lock", "lock", s.allocationHandler.HandleGate},
		{"POST /api/v1/{category}/lock", "lock", s.allocationHandler.HandleLock},
		{"POST /api/v1/{category}/unlock", "unlock", s.allocationHandler.HandleUnlock},
		{"PUT /api/v1/{category}/snapshot", "snapshot", s.allocationHandler.HandleImport},

		{"PUT /api/v1/{category}/applicants/{id}", "applicant", s.applicantHandler.HandlePut},
		{"GET /api/v1/{category}/applicants/{id}", "applicant", s.applicantHandler.HandleGet},
		{"POST /api/v1/{category}/applicants/{id}/preferences", "preferences", s.applicantHandler.HandleSubmitPreferences},
		{"POST /api/v1/{category}/applicants/{id}/confirm", "confirm", s.applicantHandler.HandleConfirm},
		{"GET /api/v1/{category}/applicants/{id}/assignment", "assignment", s.applicantHandler.HandleAssignment},
		{"GET /api/v1/{category}/allotments", "allotments", s.applicantHandler.HandleAllotments},

		{"GET /api/v1/{category}/resources", "resources", s.resourceHandler.HandleList},
		{"PUT /api/v1/{category}/resources/{id}", "resource", s.resourceHandler.HandlePut},
		{"DELETE /api/v1/{category}/resources/{id}", "resource", s.resourceHandler.HandleDelete},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, MetricsMiddleware(rt.handler, rt.endpoint))
	}
}

type errorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Issues  []model.Issue `json:"issues,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		resp.Issues = verr.Issues
	}
	writeJSON(w, status, resp)
}

// fail writes err with the status its kind maps to.
func fail(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// category parses the {category} path value.
func category(r *http.Request) (model.Category, error) {
	return model.ParseCategory(r.PathValue("category"))
}

// decodeJSON reads a single JSON document into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
