package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-ingest-scheduler/internal/ingest"
	"go-ingest-scheduler/internal/metrics"
	"go-ingest-scheduler/internal/worker"
)

type ingestBody struct {
	IDs      json.RawMessage `json:"ids"`
	Priority json.RawMessage `json:"priority"`
}

type submitResponse struct {
	IngestionID string `json:"ingestion_id"`
}

type Handler struct {
	service ingest.IngestService
	limiter *limiterPool
}

func NewHandler(svc ingest.IngestService, rps float64, burst int) *Handler {
	return &Handler{service: svc, limiter: newLimiterPool(rps, burst)}
}

// Router wires the ingestion endpoints:
//   - POST /ingest            {"ids": [...], "priority": "HIGH|MEDIUM|LOW"}
//   - GET  /status/{id}       overall and per-batch status
//   - GET  /healthz, /metrics
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ingest", h.ingest).Methods(http.MethodPost)
	r.HandleFunc("/status/{id}", h.status).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow(r) {
		metrics.RecordRejected("rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many submissions, slow down")
		return
	}
	var body ingestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ids, err := ingest.ParseIDs(body.IDs)
	if err != nil {
		metrics.RecordRejected("invalid_ids")
		writeServiceError(w, err)
		return
	}
	id, err := h.service.Submit(ids, ingest.PriorityText(body.Priority))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{IngestionID: id})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetStatus(mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ingest.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, `Invalid "ids" provided. Must be a non-empty array of integers (1 to 10^9+7).`)
	case errors.Is(err, ingest.ErrInvalidPriority):
		writeError(w, http.StatusBadRequest, `Invalid "priority" provided. Must be HIGH, MEDIUM, or LOW.`)
	case errors.Is(err, ingest.ErrNotFound):
		writeError(w, http.StatusNotFound, "Ingestion ID not found.")
	case errors.Is(err, worker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		slog.Error("Unexpected error handling request", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
