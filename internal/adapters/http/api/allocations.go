package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/seatalloc/internal/adapters/snapshot"
	"github.com/okian/seatalloc/internal/domain/model"
)

// AllocationDependencies defines the pass and session operations.
type AllocationDependencies interface {
	RunAllocation(ctx context.Context, category model.Category) (model.AllocationReport, error)
	EnqueuePass(ctx context.Context, category model.Category) (model.PassState, error)
	PassStatus(ctx context.Context, passID string) (model.PassState, error)
	LatestPass(ctx context.Context, category model.Category) (model.AllocationReport, error)
	AllocationOpen(ctx context.Context, category model.Category) (bool, error)
	SetAllocationOpen(ctx context.Context, category model.Category, open bool) error
	ImportSnapshot(ctx context.Context, snap snapshot.Snapshot) error
}

// AllocationHandler handles allocation pass requests.
type AllocationHandler struct {
	deps AllocationDependencies
}

// NewAllocationHandler creates a new allocation handler.
func NewAllocationHandler(deps AllocationDependencies) *AllocationHandler {
	return &AllocationHandler{deps: deps}
}

type gateResponse struct {
	Category model.Category `json:"category"`
	Open     bool           `json:"open"`
}

type snapshotRequest struct {
	Resources  []model.Resource  `json:"resources"`
	Applicants []model.Applicant `json:"applicants"`
}

// HandleRun handles POST /api/v1/{category}/allocations. With ?async=true the
// pass is queued and 202 is returned with its id.
func (h *AllocationHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_allocation"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}

	async := false
	if v := r.URL.Query().Get("async"); v != "" {
		if async, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	if async {
		st, err := h.deps.EnqueuePass(r.Context(), c)
		if err != nil {
			fail(w, Wrap(op, err))
			return
		}
		w.Header().Set("Location", "/api/v1/"+string(c)+"/allocations/"+st.ID)
		writeJSON(w, http.StatusAccepted, st)
		return
	}

	report, err := h.deps.RunAllocation(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleStatus handles GET /api/v1/{category}/allocations/{passID}.
func (h *AllocationHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.pass_status"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	passID := r.PathValue("passID")
	st, err := h.deps.PassStatus(r.Context(), passID)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if st.Category != c {
		fail(w, Wrap(op, &model.NotFoundError{Kind: "pass", ID: passID}))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleLatest handles GET /api/v1/{category}/allocations/latest.
func (h *AllocationHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	const op = "api.latest_pass"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	report, err := h.deps.LatestPass(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleGate handles GET /api/v1/{category}/lock.
func (h *AllocationHandler) HandleGate(w http.ResponseWriter, r *http.Request) {
	const op = "api.gate"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	open, err := h.deps.AllocationOpen(r.Context(), c)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, gateResponse{Category: c, Open: open})
}

// HandleLock handles POST /api/v1/{category}/lock.
func (h *AllocationHandler) HandleLock(w http.ResponseWriter, r *http.Request) {
	h.setGate(w, r, "api.lock", false)
}

// HandleUnlock handles POST /api/v1/{category}/unlock.
func (h *AllocationHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	h.setGate(w, r, "api.unlock", true)
}

func (h *AllocationHandler) setGate(w http.ResponseWriter, r *http.Request, op string, open bool) {
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	if err := h.deps.SetAllocationOpen(r.Context(), c, open); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, gateResponse{Category: c, Open: open})
}

// HandleImport handles PUT /api/v1/{category}/snapshot, replacing the roster
// and catalog of the category.
func (h *AllocationHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	const op = "api.import_snapshot"
	c, err := category(r)
	if err != nil {
		fail(w, Wrap(op, err))
		return
	}
	var req snapshotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	snap := snapshot.Snapshot{Category: c, Resources: req.Resources, Applicants: req.Applicants}
	if err := h.deps.ImportSnapshot(r.Context(), snap); err != nil {
		fail(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "imported"})
}
