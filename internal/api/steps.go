package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/catalog"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
	"github.com/ruslano69/tdtp-steps/pkg/xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ────────────────────────────────────────────────────────────────────────────
// POST /api/steps/{kind}/compile
// ────────────────────────────────────────────────────────────────────────────

type compileRequest struct {
	Step     json.RawMessage `json:"step"`
	Sequence int             `json:"sequence"`
	StepName string          `json:"step_name"` // default "Step <sequence>"
}

// validationResponse carries a step validation error to the form.
type validationResponse struct {
	Error string        `json:"error"`
	Kind  messages.Kind `json:"kind"`
	Step  string        `json:"step"`
	Field string        `json:"field,omitempty"`
}

// Compile validates a builder input and returns its descriptor.
// Columns of the target table come from the catalog, so new columns
// are checked against the live schema.
func (h *handler) Compile(w http.ResponseWriter, r *http.Request) {
	kind := steps.Kind(chi.URLParam(r, "kind"))

	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	step, err := steps.Decode(&steps.Descriptor{Kind: kind, QueryMeta: req.Step})
	if errors.Is(err, steps.ErrUnknownKind) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := steps.BuildOptions{Step: req.StepName, Sequence: req.Sequence}
	if table := targetTable(step); table.ID != "" {
		twc, err := h.catalog.FetchColumns(r.Context(), table.ID)
		switch {
		case errors.Is(err, catalog.ErrTableNotFound):
			writeError(w, http.StatusNotFound, "table not found")
			return
		case err != nil:
			log.Error().Err(err).Str("table", table.ID).Msg("fetch columns failed")
			writeError(w, http.StatusBadGateway, "catalog unavailable")
			return
		}
		opts.Columns = twc.Columns
	}

	desc, err := step.Build(opts)
	if err != nil {
		var verr *messages.Error
		if errors.As(err, &verr) {
			stepsCompiledTotal.WithLabelValues(string(kind), "invalid").Inc()
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
				Error: verr.Error(),
				Kind:  verr.Kind,
				Step:  verr.Step,
				Field: verr.Field,
			})
			return
		}
		stepsCompiledTotal.WithLabelValues(string(kind), "error").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stepsCompiledTotal.WithLabelValues(string(kind), "ok").Inc()
	writeJSON(w, http.StatusOK, desc)
}

// targetTable returns the table whose columns a step may add to.
func targetTable(step steps.Step) schema.Table {
	switch s := step.(type) {
	case *steps.DeleteStep:
		return s.Table
	case *steps.LookupStep:
		return s.Target
	case *steps.FormulaStep:
		return s.Target
	case *steps.TranslateStep:
		return s.Table
	}
	return schema.Table{}
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/steps/rehydrate
// ────────────────────────────────────────────────────────────────────────────

type rehydrateRequest struct {
	Descriptor *steps.Descriptor `json:"descriptor"`
	StepName   string            `json:"step_name"`
	Tables     []string          `json:"tables,omitempty"` // re-selected table ids (lookup, formula)
}

// Rehydrate restores the builder input of a saved descriptor, refreshing
// column references from the current catalog. When tables is set, the
// step is rebound to that selection and conditions on other tables are
// returned as dropped.
func (h *handler) Rehydrate(w http.ResponseWriter, r *http.Request) {
	var req rehydrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.Descriptor == nil {
		writeError(w, http.StatusBadRequest, "descriptor is required")
		return
	}

	snap, twcs, err := h.snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("catalog snapshot failed")
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	out, err := steps.Rehydrate(req.Descriptor, snap, req.StepName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(req.Tables) > 0 {
		byID := make(map[string]schema.Table, len(twcs))
		for _, twc := range twcs {
			byID[twc.Table.ID] = twc.Table
		}
		selection := make([]schema.Table, 0, len(req.Tables))
		for _, id := range req.Tables {
			table, ok := byID[id]
			if !ok {
				writeError(w, http.StatusNotFound, "table not found: "+id)
				return
			}
			selection = append(selection, table)
		}
		if err := out.Reselect(selection, snap); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ────────────────────────────────────────────────────────────────────────────
// POST /api/steps/translate/export, /api/steps/translate/import
// ────────────────────────────────────────────────────────────────────────────

// ExportRules returns the rules of a translate step as an XLSX workbook.
func (h *handler) ExportRules(w http.ResponseWriter, r *http.Request) {
	var step steps.TranslateStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	var buf bytes.Buffer
	if err := xlsx.WriteXLSX(&step, &buf, r.URL.Query().Get("sheet")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="rules.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ImportRules reads an XLSX workbook into a translate step for table_id.
func (h *handler) ImportRules(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table_id")
	if tableID == "" {
		writeError(w, http.StatusBadRequest, "table_id is required")
		return
	}

	snap, twcs, err := h.snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("catalog snapshot failed")
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}

	opts := xlsx.ImportOptions{}
	found := false
	for _, twc := range twcs {
		if twc.Table.ID == tableID {
			opts.Table = twc.Table
			found = true
		}
		opts.Columns = append(opts.Columns, twc.Columns...)
	}
	if !found {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}
	// target columns first: an unqualified `column` in a formula resolves to the target table
	opts.Columns = append(append([]schema.ColumnRef{}, snap.Columns(opts.Table.Name)...), opts.Columns...)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	step, err := xlsx.ReadXLSX(bytes.NewReader(body), r.URL.Query().Get("sheet"), opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, step)
}
