package verification

import (
	"net/http"

	"auth-service/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type confirmRequest struct {
	Token string `json:"token"`
}

type resendRequest struct {
	Email string `json:"email"`
}

// Request runs behind the bearer middleware and mails a link to the
// authenticated user.
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Request(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	writeRequestResult(w, result)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var body confirmRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if body.Token == "" {
		auth.WriteError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.service.Confirm(r.Context(), body.Token); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var body resendRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if body.Email == "" {
		auth.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}

	result, err := h.service.Resend(r.Context(), body.Email)
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	writeRequestResult(w, result)
}

func writeRequestResult(w http.ResponseWriter, result *RequestResult) {
	response := map[string]any{
		"success": true,
		"message": "if the email needs verification, a link has been sent",
	}
	if result.DebugToken != "" {
		response["debugToken"] = result.DebugToken
	}
	auth.WriteJSON(w, http.StatusOK, response)
}
