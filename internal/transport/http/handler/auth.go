package handler

import (
	"encoding/json"
	"net/http"

	"github.com/C13M3n7/my-event-app/internal/application/otp"
)

// OtpHandler handles OTP issuance and verification endpoints.
type OtpHandler struct {
	svc otp.Service
}

func NewOtpHandler(svc otp.Service) *OtpHandler {
	return &OtpHandler{svc: svc}
}

func (h *OtpHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req otp.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.Issue(r.Context(), req); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "OTP sent"})
}

func (h *OtpHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.Verify(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyEnvelope{
		Success:     true,
		UID:         result.UserID,
		Email:       result.Email,
		CustomToken: result.Assertion,
		IsAdmin:     result.IsAdmin,
		IsNewUser:   result.IsNewUser(),
	})
}
