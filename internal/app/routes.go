package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"calsync/internal/config"
	"calsync/internal/domain"
	syncengine "calsync/internal/sync"
	"calsync/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func newRouter(cfg *config.Config, l *logger.Logger, o *syncengine.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedMethods:   cfg.HTTP.CORS.AllowedMethods,
		AllowedOrigins:   cfg.HTTP.CORS.AllowedOrigins,
		AllowCredentials: cfg.HTTP.CORS.AllowCredentials,
		AllowedHeaders:   cfg.HTTP.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.HTTP.CORS.ExposedHeaders,
		Debug:            cfg.HTTP.CORS.Debug,
	}).Handler)

	h := &handler{logger: l, orchestrator: o}

	r.Post("/sync", h.triggerSync)
	r.Get("/sync/state", h.syncState)
	r.Get("/sync/result", h.syncResult)
	r.Get("/healthz", h.health)

	return r
}

type handler struct {
	logger       *logger.Logger
	orchestrator *syncengine.Orchestrator
}

// triggerSync starts a run in the background. A trigger during an active run
// is rejected, not queued.
func (h *handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	// The run outlives the triggering request on purpose.
	if err := h.orchestrator.Start(context.Background()); err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("sync trigger failed", logger.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *handler) syncState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.Tracker().State())
}

type resultResponse struct {
	Status      string    `json:"status"`
	Downloaded  int       `json:"downloaded"`
	Inserted    int       `json:"inserted"`
	Updated     int       `json:"updated"`
	Deleted     int       `json:"deleted"`
	Uploaded    int       `json:"uploaded"`
	Conflicts   int       `json:"conflicts"`
	Errors      []string  `json:"errors"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
	Incremental bool      `json:"incremental"`
}

func (h *handler) syncResult(w http.ResponseWriter, r *http.Request) {
	result := h.orchestrator.LastResult()
	if result == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run yet"})
		return
	}

	resp := resultResponse{
		Status:      string(result.Status),
		Downloaded:  result.Downloaded,
		Inserted:    result.Inserted,
		Updated:     result.Updated,
		Deleted:     result.Deleted,
		Uploaded:    result.Uploaded,
		Conflicts:   result.Conflicts,
		Errors:      make([]string, 0, len(result.Errors)),
		StartedAt:   result.StartedAt,
		Duration:    result.Duration.String(),
		Incremental: result.Incremental,
	}
	for _, se := range result.Errors {
		resp.Errors = append(resp.Errors, se.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
