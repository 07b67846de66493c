package password

import (
	"net/http"

	"auth-service/internal/auth"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 200
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type setRequest struct {
	NewPassword string `json:"newPassword"`
}

func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var body forgotRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if body.Email == "" {
		auth.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}

	result, err := h.service.Forgot(r.Context(), body.Email)
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}

	response := map[string]any{
		"success": true,
		"message": "if the email exists, a reset link has been sent",
	}
	if result.DebugToken != "" {
		response["debugToken"] = result.DebugToken
	}
	auth.WriteJSON(w, http.StatusOK, response)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var body resetRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if body.Token == "" {
		auth.WriteError(w, http.StatusBadRequest, "token is required")
		return
	}
	if !validPassword(body.NewPassword) {
		auth.WriteError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.Reset(r.Context(), body.Token, body.NewPassword); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Change(w http.ResponseWriter, r *http.Request) {
	var body changeRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if body.CurrentPassword == "" {
		auth.WriteError(w, http.StatusBadRequest, "currentPassword is required")
		return
	}
	if !validPassword(body.NewPassword) {
		auth.WriteError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.Change(r.Context(), auth.UserIDFromContext(r.Context()), body.CurrentPassword, body.NewPassword); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	var body setRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}
	if !validPassword(body.NewPassword) {
		auth.WriteError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	if err := h.service.Set(r.Context(), auth.UserIDFromContext(r.Context()), body.NewPassword); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func validPassword(p string) bool {
	return len(p) >= minPasswordLength && len(p) <= maxPasswordLength
}
