package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pavelanni/reflector/internal/export"
	"github.com/pavelanni/reflector/internal/model"
)

// handleArchiveSession exports a stored session. Archiving it again adds a
// new archive entry.
func (h *Handler) handleArchiveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.archive(w, r, sess)
}

type archiveRequest struct {
	Session model.Session `json:"session"`
}

func (h *Handler) handleArchivePosted(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", err)
		return
	}
	if req.Session.ID == "" || req.Session.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", errors.New("session id and userId are required"))
		return
	}
	h.archive(w, r, req.Session)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request, sess model.Session) {
	a, err := h.archives.Archive(r.Context(), sess)
	if err != nil {
		h.fail(w, r, err, "ErrSessionNotFound")
		return
	}
	writeJSON(w, http.StatusCreated, a.Summary())
}

func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	list, err := h.archives.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "ErrArchiveNotFound")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "ErrInvalidRequest", errors.New("id is required"))
		return
	}
	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = string(export.FormatJSON)
	}
	f, err := export.ParseFormat(typ)
	if err != nil {
		h.fail(w, r, err, "ErrArchiveNotFound")
		return
	}

	d, err := h.archives.Render(r.Context(), id, f, h.now())
	if err != nil {
		h.fail(w, r, err, "ErrArchiveNotFound")
		return
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(d.Content)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Analytics(h.catalog)
	if err != nil {
		h.fail(w, r, err, "ErrInternal")
		return
	}
	writeJSON(w, http.StatusOK, a)
}
