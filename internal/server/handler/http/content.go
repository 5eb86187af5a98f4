package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/consultdesk/internal/middleware"
	"github.com/atinyakov/consultdesk/internal/models"
)

// ContentService defines the record operations required by the HTTP
// handlers. A nil actor is an anonymous visitor.
type ContentService interface {
	List(ctx context.Context, actor *models.Identity, collection string, q models.ListQuery) ([]models.Record, error)
	Get(ctx context.Context, actor *models.Identity, collection string, id int64) (*models.Record, error)
	Create(ctx context.Context, actor *models.Identity, collection string, fields map[string]any) (*models.Record, error)
	Update(ctx context.Context, actor *models.Identity, collection string, id int64, patch map[string]any) (*models.Record, error)
	Delete(ctx context.Context, actor *models.Identity, collection string, id int64) error
}

// ContentHandler serves uniform CRUD over every collection.
type ContentHandler struct {
	ContentService ContentService
	Log            *zap.Logger
}

// List handles GET /api/{collection}.
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	q, problems := parseListQuery(r)
	if len(problems) > 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid query", Fields: problems})
		return
	}
	recs, err := h.ContentService.List(r.Context(), middleware.GetUserFromContext(r.Context()), chi.URLParam(r, "collection"), q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// Get handles GET /api/{collection}/{id}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.ContentService.Get(r.Context(), middleware.GetUserFromContext(r.Context()), chi.URLParam(r, "collection"), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Create handles POST /api/{collection}.
func (h *ContentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decode(w, r, &fields) {
		return
	}
	rec, err := h.ContentService.Create(r.Context(), middleware.GetUserFromContext(r.Context()), chi.URLParam(r, "collection"), fields)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Update handles PATCH /api/{collection}/{id}.
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	var patch map[string]any
	if !decode(w, r, &patch) {
		return
	}
	rec, err := h.ContentService.Update(r.Context(), middleware.GetUserFromContext(r.Context()), chi.URLParam(r, "collection"), id, patch)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/{collection}/{id}.
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := h.ContentService.Delete(r.Context(), middleware.GetUserFromContext(r.Context()), chi.URLParam(r, "collection"), id); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return 0, false
	}
	return id, true
}

// parseListQuery reads ordering, limit, offset and author. Range checks
// are left to the service.
func parseListQuery(r *http.Request) (models.ListQuery, map[string]string) {
	values := r.URL.Query()
	q := models.ListQuery{Ordering: values.Get("ordering")}
	problems := map[string]string{}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			problems["limit"] = "must be an integer"
		}
		q.Limit = n
	}
	if raw := values.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			problems["offset"] = "must be an integer"
		}
		q.Offset = n
	}
	if raw := values.Get("author"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			problems["author"] = "must be a member id"
		} else {
			q.AuthorID = &n
		}
	}
	return q, problems
}
