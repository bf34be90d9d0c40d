package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/C13M3n7/my-event-app/internal/application/admin"
	"github.com/C13M3n7/my-event-app/internal/transport/http/middleware"
)

// AdminHandler handles the admin dashboard endpoints.
type AdminHandler struct {
	svc admin.Service
}

func NewAdminHandler(svc admin.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	users, nextCursor, err := h.svc.ListUsers(r.Context(), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PaginatedUsersEnvelope{Data: users, NextCursor: nextCursor})
}

func (h *AdminHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, MessageEnvelope{Error: "unauthorized", Code: "unauthenticated"})
		return
	}
	var req admin.CreateAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.CreateAdmin(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleEnvelope{
		Message: fmt.Sprintf("Created admin user %s", u.Email),
		User:    u,
	})
}

func (h *AdminHandler) ManageRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, MessageEnvelope{Error: "unauthorized", Code: "unauthenticated"})
		return
	}
	var req admin.ManageRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := h.svc.ManageRole(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleEnvelope{
		Message: fmt.Sprintf("Successfully %sd %s", req.Action, u.Email),
		User:    u,
	})
}
