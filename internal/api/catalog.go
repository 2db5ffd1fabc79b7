package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/catalog"
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/dispatch"
	"github.com/ruslano69/tdtp-steps/pkg/executor"
	"github.com/ruslano69/tdtp-steps/pkg/resultlog"
)

// handler serves the /api routes.
type handler struct {
	catalog   catalog.Catalog
	executor  *executor.Executor
	results   *resultlog.RedisPublisher
	publisher *dispatch.Publisher
}

// ListTables handles GET /api/tables.
func (h *handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.catalog.ListTables(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list tables failed")
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

// FetchColumns handles GET /api/tables/{id}/columns.
func (h *handler) FetchColumns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	twc, err := h.catalog.FetchColumns(r.Context(), id)
	if errors.Is(err, catalog.ErrTableNotFound) {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("table", id).Msg("fetch columns failed")
		writeError(w, http.StatusBadGateway, "catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, twc)
}

// Operators handles GET /api/operators/{dataType}.
func (h *handler) Operators(w http.ResponseWriter, r *http.Request) {
	dt := schema.DataType(chi.URLParam(r, "dataType"))
	if !schema.IsValidType(dt) {
		writeError(w, http.StatusNotFound, "unknown data type")
		return
	}
	writeJSON(w, http.StatusOK, operators.OperatorsFor(dt))
}

// snapshot loads every catalog table with its columns.
func (h *handler) snapshot(ctx context.Context) (*catalog.Snapshot, []catalog.TableWithColumns, error) {
	tables, err := h.catalog.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(tables))
	for i, t := range tables {
		ids[i] = t.ID
	}
	twcs, err := h.catalog.FetchColumnsForTables(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewSnapshot(twcs...), twcs, nil
}
