package api

import (
	"context"
	"net/http"

	"github.com/okian/seatalloc/internal/domain/model"
)

// ApplicantDependencies defines roster, submission and confirmation operations.
type ApplicantDependencies interface {
	RegisterApplicant(ctx context.Context, category model.Category, a model.Applicant) error
	Applicant(ctx context.Context, category model.Category, applicantID string) (model.Applicant, error)
	SubmitPreferences(ctx context.Context, category model.Category, applicantID string, prefs []model.Preference) error
	Confirm(ctx context.Context, category model.Category, applicantID string) error
	GetAssignment(ctx context.Context, category model.Category, applicantID string) (model.AssignmentStatus, error)
	Allotments(ctx context.Context, category model.Category) ([]model.AssignmentStatus, error)
}

// ApplicantHandler handles applicant requests.
type ApplicantHandler struct {
	deps ApplicantDependencies
}

// NewApplicantHandler creates a new applicant handler.
func NewApplicantHandler(deps ApplicantDependencies) *ApplicantHandler {
	return &ApplicantHandler{deps: deps}
}

// applicantRequest carries the profile fields a registration may set.
type applicantRequest struct {
	Name                 string               `json:"name"`
	MeritScore           float64              `json:"merit_score"`
	Academic             model.AcademicRecord `json:"academic"`
	CompletedResourceIDs []string             `json:"completed_resource_ids"`
}

type preferencesRequest struct {
	Preferences []model.Preference `json:"preferences"`
}

// HandlePut handles PUT /api/v1/{category}/applicants/{id}.
func (h *ApplicantHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_applicant"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	var req applicantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")
	a := model.Applicant{
		ID:                   id,
		Name:                 req.Name,
		MeritScore:           req.MeritScore,
		Academic:             req.Academic,
		CompletedResourceIDs: req.CompletedResourceIDs,
	}
	if err := h.deps.RegisterApplicant(r.Context(), c, a); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	stored, err := h.deps.Applicant(r.Context(), c, id)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// HandleGet handles GET /api/v1/{category}/applicants/{id}.
func (h *ApplicantHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_applicant"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	a, err := h.deps.Applicant(r.Context(), c, r.PathValue("id"))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleSubmitPreferences handles POST /api/v1/{category}/applicants/{id}/preferences.
func (h *ApplicantHandler) HandleSubmitPreferences(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_preferences"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.SubmitPreferences(r.Context(), c, r.PathValue("id"), req.Preferences); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "accepted"})
}

// HandleConfirm handles POST /api/v1/{category}/applicants/{id}/confirm.
func (h *ApplicantHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	const op = "api.confirm"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	id := r.PathValue("id")
	if err := h.deps.Confirm(r.Context(), c, id); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	st, err := h.deps.GetAssignment(r.Context(), c, id)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAssignment handles GET /api/v1/{category}/applicants/{id}/assignment.
func (h *ApplicantHandler) HandleAssignment(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_assignment"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	st, err := h.deps.GetAssignment(r.Context(), c, r.PathValue("id"))
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleAllotments handles GET /api/v1/{category}/allotments.
func (h *ApplicantHandler) HandleAllotments(w http.ResponseWriter, r *http.Request) {
	const op = "api.allotments"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	all, err := h.deps.Allotments(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if all == nil {
		all = []model.AssignmentStatus{}
	}
	writeJSON(w, http.StatusOK, all)
}
