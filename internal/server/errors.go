package server

import (
	"errors"
	"net/http"

	"github.com/reson/transcription-service/internal/engine"
)

// httpStatus maps an engine error to the HTTP status the original API
// contract used: NotFound→404, InvalidInput→400, AuthFailure→403,
// Conflict→409, everything else→500.
func httpStatus(err error) int {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		return http.StatusInternalServerError
	}
	switch engErr.Kind {
	case engine.KindInvalidInput:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindAuthFailure:
		return http.StatusForbidden
	case engine.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
