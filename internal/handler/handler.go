package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/reflector/internal/archive"
	"github.com/pavelanni/reflector/internal/catalog"
	"github.com/pavelanni/reflector/internal/export"
	"github.com/pavelanni/reflector/internal/i18n"
	"github.com/pavelanni/reflector/internal/model"
	"github.com/pavelanni/reflector/internal/retry"
	"github.com/pavelanni/reflector/internal/store"
	"github.com/pavelanni/reflector/internal/validator"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	catalog  *catalog.Catalog
	archives *archive.Service
	coach    Generator
	config   model.ServeConfig
	retry    retry.Config
	now      func() time.Time
}

// New creates a new Handler. coach may be nil, in which case every coach
// message uses the localized fallback text.
func New(s *store.Store, c *catalog.Catalog, a *archive.Service, coach Generator, cfg model.ServeConfig) *Handler {
	rc := retry.Default()
	rc.Attempts = cfg.RetryAttempts
	if cfg.RetryDelay > 0 {
		rc.Delay = cfg.RetryDelay
	}
	return &Handler{
		store:    s,
		catalog:  c,
		archives: a,
		coach:    coach,
		config:   cfg,
		retry:    rc,
		now:      time.Now,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/weeks", h.handleWeeks)
		r.Get("/prompts", h.handlePrompts)

		r.Post("/sessions", h.handleCreateSession)
		r.Get("/sessions", h.handleListSessions)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Put("/week", h.handleSetWeek)
			r.Post("/responses", h.handleRespond)
			r.Post("/followup", h.handleFollowUp)
			r.Post("/complete", h.handleComplete)
			r.Post("/archive", h.handleArchiveSession)
		})

		r.Post("/feedback", h.handleFeedback)

		r.Post("/archive", h.handleArchivePosted)
		r.Get("/archive", h.handleListArchives)
		r.Get("/archive/download", h.handleDownload)

		r.Get("/analytics", h.handleAnalytics)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError sends a localized error. detail is only exposed for client errors.
func writeError(w http.ResponseWriter, r *http.Request, status int, msgID string, err error) {
	resp := errorResponse{Error: i18n.T(r.Context(), msgID)}
	if err != nil && status < http.StatusInternalServerError {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a service error to its HTTP status. notFoundID names the
// message used for store.ErrNotFound.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, notFoundID string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundID, err)
	case errors.Is(err, store.ErrSessionArchived):
		writeError(w, r, http.StatusConflict, "ErrSessionArchived", err)
	case errors.Is(err, export.ErrInvalidRecord):
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
	case errors.Is(err, export.ErrUnknownFormat):
		writeError(w, r, http.StatusBadRequest, "ErrUnknownFormat", err)
	case errors.Is(err, export.ErrCatalogUnavailable):
		slog.Error("catalog unavailable", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrCatalogUnavailable", err)
	case errors.Is(err, archive.ErrPersistence):
		slog.Error("archive persistence", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "ErrPersistence", err)
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "ErrInternal", err)
	}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return validator.Struct(dst)
}
