package gopsync

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"
)

type Handler struct {
	runner *Runner
	runs   RunStore
}

// NewHTTPHandler serves the sync trigger/progress API:
//
//	POST .../runs      starts (or returns the active) run, 202 + run id
//	GET  .../runs/{id} latest progress snapshot, 404 for unknown ids
func NewHTTPHandler(runner *Runner, runs RunStore) http.Handler {
	return &Handler{runner: runner, runs: runs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/runs"):
		h.handleTrigger(w, r)
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/runs/"):
		h.handleProgress(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (h *Handler) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	runID, started := h.runner.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":  runID,
		"started": started,
	})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	runID := path.Base(r.URL.Path)
	progress, ok := h.runs.Get(runID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown run id"})
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
