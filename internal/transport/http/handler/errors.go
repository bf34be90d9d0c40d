package handler

import (
	"errors"
	"net/http"

	"github.com/C13M3n7/my-event-app/internal/domain"
)

// Wire error codes. Stable: clients switch on these, never on messages.
const (
	codeInvalidArgument    = "invalid-argument"
	codeNotFound           = "not-found"
	codePermissionDenied   = "permission-denied"
	codeDeadlineExceeded   = "deadline-exceeded"
	codeFailedPrecondition = "failed-precondition"
	codeAlreadyExists      = "already-exists"
	codeUnauthenticated    = "unauthenticated"
	codeInternal           = "internal"
)

// httpError maps a domain error to an HTTP status and wire code. Unknown
// errors are reported as internal without leaking their message.
func httpError(w http.ResponseWriter, err error) {
	var status int
	var code string
	msg := err.Error()

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, domain.ErrUnauthenticated):
		status, code = http.StatusUnauthorized, codeUnauthenticated
	case errors.Is(err, domain.ErrPermissionDenied):
		status, code = http.StatusForbidden, codePermissionDenied
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrAlreadyUsed):
		status, code = http.StatusConflict, codeAlreadyExists
	case errors.Is(err, domain.ErrExpired):
		status, code = http.StatusGone, codeDeadlineExceeded
	case errors.Is(err, domain.ErrFailedPrecondition):
		status, code = http.StatusPreconditionFailed, codeFailedPrecondition
	default:
		status, code = http.StatusInternalServerError, codeInternal
		msg = "internal error"
	}
	writeJSON(w, status, MessageEnvelope{Error: msg, Code: code})
}
