package http

import (
	"encoding/json"
	"net/http"

	"github.com/veloswap/market/internal/result"
)

// statusCode maps a Result kind to the HTTP status it is served with.
func statusCode(kind result.Kind, success int) int {
	switch kind {
	case result.KindOK:
		return success
	case result.KindNotFound:
		return http.StatusNotFound
	case result.KindForbidden:
		return http.StatusForbidden
	case result.KindUnauthorized:
		return http.StatusUnauthorized
	case result.KindConflict:
		return http.StatusConflict
	case result.KindUnprocessable, result.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeResult[T any](w http.ResponseWriter, res result.Result[T], success int) {
	writeJSON(w, statusCode(res.Status, success), res)
}

// writeBadRequest is for requests that never reach a service: unreadable
// bodies and missing headers.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, result.Validation[any](message))
}
