// Package api exposes step compilation, the table catalog and process
// execution over HTTP.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruslano69/tdtp-steps/internal/infra"
)

// maxBodyBytes caps request bodies, XLSX uploads included.
const maxBodyBytes = 8 << 20

// NewRouter wires all dependencies and returns the chi router.
func NewRouter(cfg *infra.Config, inf *infra.Infra) http.Handler {
	r := chi.NewRouter()

	timeout := cfg.Server.WriteTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r.Use(zerologMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.RequestSize(maxBodyBytes))

	h := &handler{
		catalog:   inf.Catalog,
		executor:  inf.Executor,
		results:   inf.Results,
		publisher: inf.Publisher,
	}

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(inf))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tables", h.ListTables)
		r.Get("/tables/{id}/columns", h.FetchColumns)
		r.Get("/operators/{dataType}", h.Operators)

		r.Route("/steps", func(r chi.Router) {
			r.Post("/rehydrate", h.Rehydrate)
			r.Post("/translate/export", h.ExportRules)
			r.Post("/translate/import", h.ImportRules)
			r.Post("/{kind}/compile", h.Compile)
		})

		r.Route("/processes", func(r chi.Router) {
			r.Post("/plan", h.Plan)
			r.Post("/execute", h.Execute)
			r.Post("/dispatch", h.Dispatch)
			r.Get("/{id}/result", h.Result)
		})
	})

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz checks Redis, the database and the broker publish path.
func handleReadyz(inf *infra.Infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{
			"redis":    "ok",
			"database": "ok",
			"broker":   "ok",
		}
		status := http.StatusOK

		if err := inf.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := inf.Adapter.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := inf.Publisher.Ready(ctx); err != nil {
			checks["broker"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, checks)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
