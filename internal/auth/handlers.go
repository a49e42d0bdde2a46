package auth

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/httputil"
)

type Handler struct {
	db      *sql.DB
	service *Service
}

func NewHandler(db *sql.DB, service *Service) *Handler {
	return &Handler{db: db, service: service}
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	return r
}

// register creates an operator account. The first account becomes the admin.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	req.Username = NormalizeUsername(req.Username)
	if req.Username == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "username and password are required")
		return
	}
	if err := ValidatePassword(req.Password, 8, false); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "WEAK_PASSWORD", err.Error())
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to hash password")
		return
	}

	var count int
	h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM users").Scan(&count)
	isAdmin := count == 0

	userID := uuid.New()
	_, err = h.db.ExecContext(r.Context(),
		"INSERT INTO users (id, username, password_hash, is_admin) VALUES ($1, $2, $3, $4)",
		userID, req.Username, hash, isAdmin)
	if err != nil {
		httputil.WriteError(w, http.StatusConflict, "USERNAME_EXISTS", "username already registered")
		return
	}

	token, err := h.service.IssueToken(userID, req.Username, isAdmin)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue token")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"user_id":  userID,
		"is_admin": isAdmin,
		"token":    token,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	req.Username = NormalizeUsername(req.Username)

	var userID uuid.UUID
	var hash string
	var isAdmin bool
	err := h.db.QueryRowContext(r.Context(),
		"SELECT id, password_hash, is_admin FROM users WHERE username = $1",
		req.Username).Scan(&userID, &hash, &isAdmin)
	if err != nil || !CheckPassword(hash, req.Password) {
		httputil.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	token, err := h.service.IssueToken(userID, req.Username, isAdmin)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to issue token")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  userID,
		"is_admin": isAdmin,
		"token":    token,
	})
}
