// Package httputil carries the JSON response envelope and the mapping from
// domain error kinds to HTTP classes.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reelmatch/reelmatch/internal/db"
	"github.com/reelmatch/reelmatch/internal/resolver"
)

type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "ok",
		Data:   data,
	})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "error",
		Error: &ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

func ReadJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// WriteDomainError maps a core error to its HTTP class: conflicts the caller
// must resolve are 409, bad input 400, missing referents 404, transient
// store trouble 503, anything else 500. The error's kind tag becomes the
// response code.
func WriteDomainError(w http.ResponseWriter, err error) {
	var kinder resolver.Kinder
	if errors.As(err, &kinder) {
		WriteError(w, statusForKind(kinder.Kind()), kinder.Kind(), err.Error())
		return
	}
	if db.IsTransient(err) {
		WriteError(w, http.StatusServiceUnavailable, "TRANSIENT_STORE_ERROR", err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}

func statusForKind(kind string) int {
	switch kind {
	case resolver.KindAmbiguousLink,
		resolver.KindObjectTypeMismatch,
		resolver.KindExternalIDMismatch,
		resolver.KindIncompatibleMerge,
		"INVALID_STATUS_TRANSITION":
		return http.StatusConflict
	case resolver.KindObjectNotFound,
		resolver.KindPlatformNotFound,
		resolver.KindLinkNotFound:
		return http.StatusNotFound
	case resolver.KindUnknownAttribute:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
