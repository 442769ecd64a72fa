package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
)

// Router exposes the operational surface: execution status lookup and
// manual replay of terminal executions. A replay rewinds the record and then
// publishes the document-created trigger so a worker picks the run up again.
type Router struct {
	orchestrator ports.PipelineOrchestrator
	triggers     ports.TriggerQueue
}

func NewRouter(orchestrator ports.PipelineOrchestrator, triggers ports.TriggerQueue) *Router {
	return &Router{orchestrator: orchestrator, triggers: triggers}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/executions", rt.getExecutionStatus)
	mux.HandleFunc("/v1/executions/replay", rt.replayExecution)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getExecutionStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ref := domain.DocumentRef{
		Container: r.URL.Query().Get("container"),
		Key:       r.URL.Query().Get("key"),
	}
	if err := ref.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query params 'container' and 'key' are required"})
		return
	}

	view, err := rt.orchestrator.GetExecutionStatus(r.Context(), ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) replayExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var request struct {
		Container string `json:"container"`
		Key       string `json:"key"`
		FromStage int    `json:"from_stage"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	ref := domain.DocumentRef{Container: request.Container, Key: request.Key}
	if err := ref.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fields 'container' and 'key' are required"})
		return
	}

	if err := rt.orchestrator.Replay(r.Context(), ref, request.FromStage, request.Reason); err != nil {
		writeError(w, err)
		return
	}

	// The rewound record only moves again when a worker receives the trigger.
	if err := rt.triggers.PublishDocumentCreated(r.Context(), ref); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "replay recorded but trigger publish failed: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "replay scheduled"})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsKind(err, domain.ErrExecutionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case domain.IsKind(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case domain.IsKind(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
