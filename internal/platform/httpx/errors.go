// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// ErrUnauthorized signals a missing or invalid bearer token.
var ErrUnauthorized = errors.New("unauthorized")

var problemTitles = map[shared.Kind]struct {
	status int
	title  string
}{
	shared.KindValidation:        {http.StatusBadRequest, "Validation Failed"},
	shared.KindInvalidState:      {http.StatusBadRequest, "Invalid State"},
	shared.KindInsufficientStock: {http.StatusBadRequest, "Insufficient Stock"},
	shared.KindConflict:          {http.StatusBadRequest, "Conflict"},
	shared.KindAccessDenied:      {http.StatusForbidden, "Forbidden"},
	shared.KindNotFound:          {http.StatusNotFound, "Not Found"},
}

// StatusFor returns the HTTP status used for err.
func StatusFor(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if p, ok := problemTitles[shared.KindOf(err)]; ok {
		return p.status
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors are reported without detail.
func RespondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnauthorized) {
		writeProblem(w, ProblemDetail{Type: "unauthorized", Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error()})
		return
	}
	kind := shared.KindOf(err)
	p, ok := problemTitles[kind]
	if !ok {
		writeProblem(w, ProblemDetail{Type: string(shared.KindInternal), Title: "Internal Error", Status: http.StatusInternalServerError})
		return
	}
	writeProblem(w, ProblemDetail{Type: string(kind), Title: p.title, Status: p.status, Detail: err.Error()})
}
