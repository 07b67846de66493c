package twofactor

import (
	"net/http"
	"strings"

	"auth-service/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type codeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Setup(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "totp": result})
}

func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.service.Enable(r.Context(), auth.UserIDFromContext(r.Context()), code); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	code, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.service.Verify(r.Context(), auth.UserIDFromContext(r.Context()), code); err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func decodeCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body codeRequest
	if !auth.DecodeJSON(w, r, &body) {
		return "", false
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		auth.WriteError(w, http.StatusBadRequest, "code is required")
		return "", false
	}
	return code, true
}
