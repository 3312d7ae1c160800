package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/student"
	"github.com/nerrad567/student-registry/internal/validation"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine-readable values of Error.Code.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeRateLimited  = "rate_limited"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client may have gone
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// errorMapping sends errors matching one of targets to status and code.
// The response message is the first target's text, so wrapped store
// details never reach the client.
type errorMapping struct {
	targets []error
	status  int
	code    string
}

var serviceErrors = []errorMapping{
	{[]error{auth.ErrInvalidCredentials}, http.StatusUnauthorized, ErrCodeUnauthorized},
	{[]error{auth.ErrUnauthenticated, auth.ErrTokenInvalid, auth.ErrTokenExpired}, http.StatusUnauthorized, ErrCodeUnauthorized},
	{[]error{auth.ErrSelfModification}, http.StatusForbidden, ErrCodeForbidden},
	{[]error{auth.ErrForbidden}, http.StatusForbidden, ErrCodeForbidden},
	{[]error{auth.ErrEmailExists}, http.StatusConflict, ErrCodeConflict},
	{[]error{auth.ErrStaffNotFound}, http.StatusNotFound, ErrCodeNotFound},
	{[]error{student.ErrNotFound}, http.StatusNotFound, ErrCodeNotFound},
	{[]error{student.ErrOwnerNotFound}, http.StatusNotFound, ErrCodeNotFound},
}

// writeServiceError turns a service error into a response. Validation
// errors keep their own text, which only names request fields. Anything
// unmapped is logged and answered with a bare 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, validation.ErrInvalid) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	for _, m := range serviceErrors {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				writeError(w, m.status, m.code, m.targets[0].Error())
				return
			}
		}
	}

	s.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
		"error", err,
	)
	writeInternalError(w, "internal server error")
}
