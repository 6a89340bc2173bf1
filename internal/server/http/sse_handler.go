package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	agentdomain "github.com/catface996/aiops-executor/internal/domain/agent"
)

// wireEvent is the JSON payload of the "data:" field of an SSE event
// (spec.md §6 wire format).
type wireEvent struct {
	RunID     string         `json:"run_id"`
	Timestamp string         `json:"timestamp"`
	Sequence  uint64         `json:"sequence"`
	Source    wireSource     `json:"source"`
	Event     wireEventKind  `json:"event"`
	Data      map[string]any `json:"data"`
}

type wireSource struct {
	AgentID   string  `json:"agent_id"`
	AgentType string  `json:"agent_type"`
	AgentName string  `json:"agent_name"`
	TeamName  *string `json:"team_name"`
}

type wireEventKind struct {
	Category string `json:"category"`
	Action   string `json:"action"`
}

func toWireEvent(e *agentdomain.Event) wireEvent {
	var teamName *string
	if e.EventSource.TeamName != "" {
		teamName = &e.EventSource.TeamName
	}
	return wireEvent{
		RunID:     e.RunID,
		Timestamp: e.Ts.UTC().Format("2006-01-02T15:04:05.000Z"),
		Sequence:  e.Sequence,
		Source: wireSource{
			AgentID:   e.EventSource.AgentID,
			AgentType: string(e.EventSource.AgentType),
			AgentName: e.EventSource.AgentName,
			TeamName:  teamName,
		},
		Event: wireEventKind{Category: string(e.Classification.Category), Action: string(e.Classification.Action)},
		Data:  e.Data,
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, e *agentdomain.Event) error {
	payload, err := json.Marshal(toWireEvent(e))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s.%s\ndata: %s\n\n", e.Classification.Category, e.Classification.Action, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// HandleStreamRun implements runs.stream (spec.md §4.6): if the run's hub is
// open, stream replay-then-live events in SSE format; if the hub is gone
// and the run is terminal, 400 "run ended"; if the run never existed, 404.
func (h *Handlers) HandleStreamRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	_, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to get run")
		return
	}

	hub, ok := h.registry.Get(runID)
	if !ok {
		writeError(w, http.StatusBadRequest, "run ended")
		return
	}

	sub, replay, err := h.registry.SubscribeWithReplay(r.Context(), hub, runID)
	if err != nil {
		writeMappedError(w, err, http.StatusInternalServerError, "failed to attach to run stream")
		return
	}
	defer hub.Unsubscribe(sub)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, e := range replay {
		if err := writeSSEEvent(w, flusher, e); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, flusher, e); err != nil {
				return
			}
		}
	}
}
