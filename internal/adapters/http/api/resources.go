package api

import (
	"context"
	"net/http"

	"github.com/okian/seatalloc/internal/domain/model"
)

// ResourceDependencies defines catalog operations.
type ResourceDependencies interface {
	ListResources(ctx context.Context, category model.Category) ([]model.Resource, error)
	UpsertResource(ctx context.Context, category model.Category, r model.Resource) error
	DeleteResource(ctx context.Context, category model.Category, resourceID string) error
}

// ResourceHandler handles catalog requests.
type ResourceHandler struct {
	deps ResourceDependencies
}

// NewResourceHandler creates a new resource handler.
func NewResourceHandler(deps ResourceDependencies) *ResourceHandler {
	return &ResourceHandler{deps: deps}
}

type resourceRequest struct {
	Name                 string  `json:"name"`
	Capacity             int     `json:"capacity"`
	EligibilityThreshold float64 `json:"eligibility_threshold"`
}

// HandleList handles GET /api/v1/{category}/resources.
func (h *ResourceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_resources"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	resources, err := h.deps.ListResources(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if resources == nil {
		resources = []model.Resource{}
	}
	writeJSON(w, http.StatusOK, resources)
}

// HandlePut handles PUT /api/v1/{category}/resources/{id}.
func (h *ResourceHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_resource"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	var req resourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res := model.Resource{
		ID:                   r.PathValue("id"),
		Name:                 req.Name,
		Capacity:             req.Capacity,
		EligibilityThreshold: req.EligibilityThreshold,
	}
	if err := h.deps.UpsertResource(r.Context(), c, res); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	// Respond with the stored record, which carries the allocated count.
	resources, err := h.deps.ListResources(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	for _, stored := range resources {
		if stored.ID == res.ID {
			res = stored
			break
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDelete handles DELETE /api/v1/{category}/resources/{id}.
func (h *ResourceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_resource"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if err := h.deps.DeleteResource(r.Context(), c, r.PathValue("id")); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
