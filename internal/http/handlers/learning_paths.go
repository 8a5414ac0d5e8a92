package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/http/respond"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models/dto"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

// LearningPathHandler passes learning-path documents through to the store unchanged.
type LearningPathHandler struct {
	paths storage.Collection
}

// NewLearningPathHandler constructs the handler over the learning_paths collection of store.
func NewLearningPathHandler(store storage.Store) *LearningPathHandler {
	return &LearningPathHandler{paths: store.Collection(models.CollectionLearningPaths)}
}

// Register attaches the routes. writeGuard is applied to every mutation.
func (h *LearningPathHandler) Register(r chi.Router, writeGuard Middleware) {
	r.Route("/learning-paths", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.With(writeGuard).Post("/", h.handleCreate)
		r.With(writeGuard).Put("/{id}", h.handleUpdate)
		r.With(writeGuard).Delete("/{id}", h.handleDelete)
	})
}

func (h *LearningPathHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := respond.Decode(r, &raw); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var ids []string
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var docs []storage.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil || len(docs) == 0 {
			respond.Error(w, http.StatusBadRequest, "expected a non-empty array of objects")
			return
		}
		for i := range docs {
			docs[i] = docs[i].Without(models.FieldID)
		}
		inserted, err := h.paths.InsertMany(r.Context(), docs)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ids = inserted
	} else {
		var doc storage.Document
		if err := json.Unmarshal(trimmed, &doc); err != nil || doc == nil {
			respond.Error(w, http.StatusBadRequest, "expected an object or an array of objects")
			return
		}
		id, err := h.paths.InsertOne(r.Context(), doc.Without(models.FieldID))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ids = []string{id}
	}
	respond.JSON(w, http.StatusCreated, "learning path created", dto.InsertResponse{InsertedIDs: ids})
}

func (h *LearningPathHandler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := storage.Filter{}
	if code := r.URL.Query().Get(models.FieldClassCode); code != "" {
		filter[models.FieldClassCode] = code
	}
	docs, err := h.paths.FindMany(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", docs)
}

func (h *LearningPathHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.paths.FindOne(r.Context(), storage.Filter{models.FieldID: chi.URLParam(r, "id")})
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "learning path not found")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ok", doc)
}

func (h *LearningPathHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var set storage.Document
	if err := respond.Decode(r, &set); err != nil || len(set) == 0 {
		respond.Error(w, http.StatusBadRequest, "expected a non-empty object")
		return
	}
	res, err := h.paths.UpdateOne(r.Context(),
		storage.Filter{models.FieldID: chi.URLParam(r, "id")},
		set.Without(models.FieldID),
		false,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Matched == 0 {
		respond.Error(w, http.StatusNotFound, "learning path not found")
		return
	}
	respond.JSON(w, http.StatusOK, "learning path updated", dto.UpdateResponse{Matched: res.Matched, Modified: res.Modified})
}

func (h *LearningPathHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := h.paths.DeleteOne(r.Context(), storage.Filter{models.FieldID: chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if n == 0 {
		respond.Error(w, http.StatusNotFound, "learning path not found")
		return
	}
	respond.JSON(w, http.StatusOK, "learning path deleted", nil)
}
