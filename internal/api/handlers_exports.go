package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reelmatch/reelmatch/internal/export"
	"github.com/reelmatch/reelmatch/internal/httputil"
	"github.com/reelmatch/reelmatch/internal/jobs"
	"github.com/reelmatch/reelmatch/internal/models"
)

// handleExport streams a feed of all entities of one type. Query params:
// platforms (comma-separated slugs, one id column each), per_link,
// template (optional row template).
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	typ, ok := models.ParseObjectType(chi.URLParam(r, "type"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be person, movie, episode or series")
		return
	}

	var slugs []string
	if raw := r.URL.Query().Get("platforms"); raw != "" {
		for _, slug := range strings.Split(raw, ",") {
			if slug = strings.TrimSpace(slug); slug != "" {
				slugs = append(slugs, slug)
			}
		}
	}

	req := export.Request{
		Type:      typ,
		Platforms: slugs,
		PerLink:   r.URL.Query().Get("per_link") == "true",
		Template:  r.URL.Query().Get("template"),
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.exporter.Stream(r.Context(), req, w); err != nil {
		// Headers may already be out; log and cut the stream.
		s.log.Errorw("export stream failed", "type", typ, "error", err)
	}
}

// handleRefresh forces a scoring view refresh through the queue.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	concurrently := r.URL.Query().Get("blocking") != "true"
	taskID, err := s.queue.EnqueueUnique(jobs.TaskScoringRefresh,
		jobs.RefreshPayload{Concurrently: concurrently}, "scoring:refresh")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue refresh")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}
