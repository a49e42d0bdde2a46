package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/reelmatch/reelmatch/internal/httputil"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/repository"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

type insertObjectRequest struct {
	resolver.InsertData
	// ScrapPlatform optionally records a crawl audit row credited to this
	// platform and attached to the entity's link on it.
	ScrapPlatform *int64 `json:"scrap_platform,omitempty"`
}

func (s *Server) handleInsertObject(w http.ResponseWriter, r *http.Request) {
	var req insertObjectRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if len(req.Links) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "at least one link is required")
		return
	}

	var scrap *models.Scrap
	if req.ScrapPlatform != nil {
		var err error
		scrap, err = s.importRepo.CreateScrap(r.Context(), *req.ScrapPlatform)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
	}

	var obj *models.ExternalObject
	err := s.withStore(r.Context(), func(store *repository.TxStore) error {
		var err error
		obj, err = s.engine(store).InsertDict(r.Context(), req.InsertData, scrap)
		return err
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, obj)
}

type objectResponse struct {
	ID         int64                         `json:"id"`
	Type       models.ObjectType             `json:"type"`
	Links      []models.ObjectLink           `json:"links"`
	Attributes map[models.ValueType][]string `json:"attributes"`
}

// handleGetObject reads the curated attribute lists from the materialized
// snapshot, not the base tables: entity reads see the last refresh.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "object id must be numeric")
		return
	}

	obj, err := s.objectRepo.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if obj == nil {
		httputil.WriteDomainError(w, &resolver.ObjectNotFoundError{ObjectID: id})
		return
	}

	links, err := s.objectRepo.Links(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	attrs, err := s.view.AttributesFor(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, objectResponse{
		ID:         obj.ID,
		Type:       obj.Type,
		Links:      links,
		Attributes: attrs,
	})
}

func (s *Server) handleMergeObjects(w http.ResponseWriter, r *http.Request) {
	selfID, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "object id must be numeric")
		return
	}
	targetID, err := cast.ToInt64E(chi.URLParam(r, "target"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "target id must be numeric")
		return
	}
	if selfID == targetID {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "an object cannot be merged into itself")
		return
	}

	err = s.withStore(r.Context(), func(store *repository.TxStore) error {
		return s.engine(store).MergeAndDelete(r.Context(), selfID, targetID)
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"merged_into": targetID})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "q is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := cast.ToIntE(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := s.view.Search(r.Context(), query, limit)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}
