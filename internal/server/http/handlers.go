package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/catface996/aiops-executor/internal/domain"
	"github.com/catface996/aiops-executor/internal/logging"
	"github.com/catface996/aiops-executor/internal/server/app"
	"github.com/catface996/aiops-executor/internal/server/ports"
)

// Handlers implements the bounded HTTP facade (spec.md §4.6).
type Handlers struct {
	manager  *app.Manager
	runs     ports.RunRepository
	events   ports.EventRepository
	registry *app.Registry
	logger   logging.Logger
}

// NewHandlers builds the HTTP facade's handler set.
func NewHandlers(manager *app.Manager, runs ports.RunRepository, events ports.EventRepository, registry *app.Registry) *Handlers {
	return &Handlers{manager: manager, runs: runs, events: events, registry: registry, logger: logging.NewComponentLogger("HTTP")}
}

type startRunRequest struct {
	HierarchyID string `json:"hierarchy_id"`
	Task        string `json:"task"`
}

type startRunResponse struct {
	ID        string `json:"id"`
	StreamURL string `json:"stream_url"`
}

// HandleStartRun implements runs.start.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.HierarchyID == "" || req.Task == "" {
		writeError(w, http.StatusBadRequest, "hierarchy_id and task are required")
		return
	}

	run, err := h.manager.StartRun(r.Context(), req.HierarchyID, req.Task)
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to start run")
		return
	}

	writeOK(w, startRunResponse{ID: run.ID, StreamURL: "/api/runs/" + run.ID + "/stream"})
}

// HandleListRuns implements runs.list.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intQuery(q, "page", 1)
	size := intQuery(q, "size", 20)
	if page < 1 {
		writeError(w, http.StatusBadRequest, "page must be >= 1")
		return
	}
	if size < 1 || size > 100 {
		writeError(w, http.StatusBadRequest, "size must be between 1 and 100")
		return
	}

	filters := ports.RunFilters{
		HierarchyID: q.Get("hierarchy_id"),
		Status:      domain.Status(q.Get("status")),
	}

	runs, total, err := h.runs.List(r.Context(), page, size, filters)
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeOK(w, paged(runs, page, size, total))
}

// HandleGetRun implements runs.get.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeOK(w, run)
}

// HandleCancelRun implements runs.cancel.
func (h *Handlers) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.CancelRun(r.Context(), r.PathValue("id")); err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to cancel run")
		return
	}
	writeOK(w, map[string]bool{"cancelled": true})
}

// HandleGetRunEvents implements runs.events: a full historical dump of
// persisted events for the run.
func (h *Handlers) HandleGetRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, err := h.runs.Get(r.Context(), runID); err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to get run")
		return
	}
	events, err := h.events.GetEvents(r.Context(), runID)
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to get events")
		return
	}
	writeOK(w, events)
}

func intQuery(q map[string][]string, key string, def int) int {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return def
	}
	n, err := strconv.Atoi(values[0])
	if err != nil {
		return def
	}
	return n
}
