package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to a stable wire code and HTTP
// status without leaking infrastructure details. The set mirrors the
// callable-function error taxonomy the web clients already understand.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrExpired            = errors.New("deadline exceeded")
	ErrFailedPrecondition = errors.New("failed precondition")
	ErrAlreadyUsed        = errors.New("already used")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInternal           = errors.New("internal")
)
