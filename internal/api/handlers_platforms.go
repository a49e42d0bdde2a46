package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/reelmatch/reelmatch/internal/httputil"
	"github.com/reelmatch/reelmatch/internal/models"
)

func (s *Server) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	list, err := s.platforms.List(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

// handleGetPlatform accepts a numeric id or a slug; numeric misses are 404,
// unknown slugs too.
func (s *Server) handleGetPlatform(w http.ResponseWriter, r *http.Request) {
	p, err := s.platforms.Lookup(r.Context(), chi.URLParam(r, "selector"))
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	if p == nil {
		httputil.WriteError(w, http.StatusNotFound, "PLATFORM_NOT_FOUND", "no such platform")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePlatform(w http.ResponseWriter, r *http.Request) {
	var p models.Platform
	if err := httputil.ReadJSON(r, &p); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if p.Slug == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "slug is required")
		return
	}
	if err := s.platforms.Create(r.Context(), &p); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_PLATFORM", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePlatform(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "platform id must be numeric")
		return
	}
	var p models.Platform
	if err := httputil.ReadJSON(r, &p); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	p.ID = id
	if err := s.platforms.Update(r.Context(), &p); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_PLATFORM", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePlatform(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "platform id must be numeric")
		return
	}
	if err := s.platforms.Delete(r.Context(), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.platforms.ListGroups(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "group id must be numeric")
		return
	}
	members, err := s.platforms.GroupMembers(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, members)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var g models.PlatformGroup
	if err := httputil.ReadJSON(r, &g); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	if g.Name == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "name is required")
		return
	}
	if err := s.platforms.CreateGroup(r.Context(), &g); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "group id must be numeric")
		return
	}
	if err := s.platforms.DeleteGroup(r.Context(), id); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": id})
}
