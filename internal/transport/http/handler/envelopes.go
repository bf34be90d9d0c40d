package handler

import (
	"encoding/json"
	"net/http"

	"github.com/C13M3n7/my-event-app/internal/domain"
)

// MessageEnvelope is the generic response wrapper. Code carries the stable
// wire error code the web clients switch on.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// VerifyEnvelope wraps a successful OTP verification.
type VerifyEnvelope struct {
	Success     bool   `json:"success"`
	UID         string `json:"uid"`
	Email       string `json:"email"`
	CustomToken string `json:"customToken"`
	IsAdmin     bool   `json:"isAdmin"`
	IsNewUser   bool   `json:"isNewUser"`
}

// AuthEnvelope wraps session-establishing responses.
type AuthEnvelope struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	Session      *domain.Session `json:"session,omitempty"`
	User         *domain.User    `json:"user,omitempty"`
}

// PaginatedUsersEnvelope wraps paginated user list responses.
type PaginatedUsersEnvelope struct {
	Data       []domain.User `json:"data"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// RoleEnvelope wraps role-management responses.
type RoleEnvelope struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg, Code: codeInvalidArgument})
}
