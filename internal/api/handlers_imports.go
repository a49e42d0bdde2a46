package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/reelmatch/reelmatch/internal/httputil"
	"github.com/reelmatch/reelmatch/internal/jobs"
	"github.com/reelmatch/reelmatch/internal/models"
)

const maxUploadBytes = 512 << 20

// handleUploadImport accepts a multipart upload: the file itself under
// "file", the column→directive map as JSON under "fields", the imported
// type under "type", and an optional source platform id under "platform".
func (s *Server) handleUploadImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "expected multipart form data")
		return
	}

	typ, ok := models.ParseObjectType(r.FormValue("type"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_TYPE", "type must be person, movie, episode or series")
		return
	}

	fields := map[string]string{}
	if raw := r.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "INVALID_FIELDS", "fields must be a JSON object of column to directive")
			return
		}
	}

	var platformID *int64
	if raw := r.FormValue("platform"); raw != "" {
		id, err := cast.ToInt64E(raw)
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "platform must be numeric")
			return
		}
		p, err := s.platforms.GetByID(r.Context(), id)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
		if p == nil {
			httputil.WriteError(w, http.StatusNotFound, "PLATFORM_NOT_FOUND", "no such platform")
			return
		}
		platformID = &id
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "file part is required")
		return
	}
	defer upload.Close()

	file := &models.ImportFile{
		Filename:     header.Filename,
		Fields:       fields,
		ImportedType: typ,
		PlatformID:   platformID,
	}
	if err := s.importer.Upload(r.Context(), file, upload); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, file)
}

// handleReuploadImport replaces a failed file's payload and re-enters the
// uploaded state; any other current state is a conflict.
func (s *Server) handleReuploadImport(w http.ResponseWriter, r *http.Request) {
	file := s.importFileFromRequest(w, r)
	if file == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "expected multipart form data")
		return
	}
	upload, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "file part is required")
		return
	}
	defer upload.Close()

	if err := s.importer.Reupload(r.Context(), file, upload); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, file)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := cast.ToIntE(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := cast.ToIntE(v); err == nil && n >= 0 {
			offset = n
		}
	}

	files, err := s.importRepo.List(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, files)
}

func (s *Server) importFileFromRequest(w http.ResponseWriter, r *http.Request) *models.ImportFile {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_ID", "import id must be a uuid")
		return nil
	}
	file, err := s.importRepo.GetByID(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return nil
	}
	if file == nil {
		httputil.WriteError(w, http.StatusNotFound, "IMPORT_NOT_FOUND", "no such import file")
		return nil
	}
	return file
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	file := s.importFileFromRequest(w, r)
	if file == nil {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, file)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	file := s.importFileFromRequest(w, r)
	if file == nil {
		return
	}
	logs, err := s.importRepo.Logs(r.Context(), file.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, logs)
}

func (s *Server) handleImportLinks(w http.ResponseWriter, r *http.Request) {
	file := s.importFileFromRequest(w, r)
	if file == nil {
		return
	}
	links, err := s.importRepo.TouchedLinks(r.Context(), file.ID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, links)
}

// handleProcessImport queues the file for processing. The queue task id is
// derived from the file id so repeated requests collapse into one run.
func (s *Server) handleProcessImport(w http.ResponseWriter, r *http.Request) {
	file := s.importFileFromRequest(w, r)
	if file == nil {
		return
	}
	if file.Status != models.ImportUploaded {
		httputil.WriteError(w, http.StatusConflict, "INVALID_STATUS_TRANSITION",
			"file is not in uploaded state")
		return
	}

	taskID, err := s.queue.EnqueueUnique(jobs.TaskImportProcess,
		jobs.ImportPayload{FileID: file.ID.String()}, "import:"+file.ID.String())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue import")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"file_id": file.ID.String(),
		"task_id": taskID,
	})
}
