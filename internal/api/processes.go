package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/executor"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/resilience"
)

// decodeProcess reads a process document from the request body.
func decodeProcess(w http.ResponseWriter, r *http.Request) (*process.Process, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return nil, false
	}
	p, err := process.Decode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return p, true
}

// Plan handles POST /api/processes/plan: SQL statements per step, nothing is executed.
func (h *handler) Plan(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProcess(w, r)
	if !ok {
		return
	}

	plans := make([]*executor.Plan, 0, len(p.Steps))
	for _, desc := range p.Steps {
		plan, err := h.executor.Plan(desc)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		plans = append(plans, plan)
	}
	writeJSON(w, http.StatusOK, plans)
}

// Execute handles POST /api/processes/execute: runs the process synchronously.
func (h *handler) Execute(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProcess(w, r)
	if !ok {
		return
	}

	report, err := h.executor.Run(r.Context(), p)
	processesTotal.WithLabelValues("execute", report.Status).Inc()
	if err != nil {
		log.Warn().Err(err).Str("process_id", p.ID.String()).Msg("process failed")
		writeJSON(w, http.StatusUnprocessableEntity, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type dispatchResponse struct {
	ProcessID string `json:"process_id"`
	Steps     int    `json:"steps"`
}

// Dispatch handles POST /api/processes/dispatch: publishes the process to the broker.
func (h *handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProcess(w, r)
	if !ok {
		return
	}

	if err := h.publisher.Publish(r.Context(), p); err != nil {
		processesTotal.WithLabelValues("dispatch", "failed").Inc()
		status := http.StatusBadGateway
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyCalls) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	processesTotal.WithLabelValues("dispatch", "queued").Inc()
	writeJSON(w, http.StatusAccepted, dispatchResponse{ProcessID: p.ID.String(), Steps: len(p.Steps)})
}

// Result handles GET /api/processes/{id}/result: the last published report.
func (h *handler) Result(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid process id")
		return
	}

	report, err := h.results.Last(r.Context(), id.String())
	if err != nil {
		log.Error().Err(err).Str("process_id", id.String()).Msg("result lookup failed")
		writeError(w, http.StatusBadGateway, "result store unavailable")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
