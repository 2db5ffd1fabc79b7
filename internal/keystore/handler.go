package keystore

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/mercury"
)

var keyOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "keysrv_key_operations_total",
	Help: "Key bind and retrieve calls by result.",
}, []string{"op", "result"})

// NewRouter exposes the store over the key service HTTP API:
//
//	POST /api/keys/bind     {process_id, process_name} -> {key_b64, hmac}
//	POST /api/keys/retrieve {process_id}               -> {key_b64}, 404 once read
//	GET  /healthz
func NewRouter(store *Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(middleware.RequestSize(64 << 10))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/keys/bind", bindHandler(store))
	r.Post("/api/keys/retrieve", retrieveHandler(store))
	return r
}

func bindHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mercury.BindKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			keyOps.WithLabelValues("bind", "bad_request").Inc()
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		id, err := uuid.Parse(req.ProcessID)
		if err != nil {
			keyOps.WithLabelValues("bind", "bad_request").Inc()
			http.Error(w, "process_id must be a uuid", http.StatusBadRequest)
			return
		}

		binding, err := store.Bind(r.Context(), id)
		if err != nil {
			keyOps.WithLabelValues("bind", "error").Inc()
			log.Error().Err(err).Str("process_id", id.String()).Msg("bind failed")
			http.Error(w, "bind failed", http.StatusInternalServerError)
			return
		}

		keyOps.WithLabelValues("bind", "ok").Inc()
		log.Info().Str("process_id", id.String()).Str("process", req.ProcessName).Msg("key bound")
		writeJSON(w, http.StatusOK, binding)
	}
}

func retrieveHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req mercury.RetrieveKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			keyOps.WithLabelValues("retrieve", "bad_request").Inc()
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}
		id, err := uuid.Parse(req.ProcessID)
		if err != nil {
			keyOps.WithLabelValues("retrieve", "bad_request").Inc()
			http.Error(w, "process_id must be a uuid", http.StatusBadRequest)
			return
		}

		keyB64, err := store.BurnOnRead(r.Context(), id)
		if errors.Is(err, ErrKeyNotFound) {
			keyOps.WithLabelValues("retrieve", "not_found").Inc()
			log.Warn().Str("process_id", id.String()).Msg("key not found or already consumed")
			http.Error(w, "key not found or already consumed", http.StatusNotFound)
			return
		}
		if err != nil {
			keyOps.WithLabelValues("retrieve", "error").Inc()
			log.Error().Err(err).Str("process_id", id.String()).Msg("retrieve failed")
			http.Error(w, "retrieve failed", http.StatusInternalServerError)
			return
		}

		keyOps.WithLabelValues("retrieve", "ok").Inc()
		log.Info().Str("process_id", id.String()).Msg("key burned")
		writeJSON(w, http.StatusOK, map[string]string{"key_b64": keyB64})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
