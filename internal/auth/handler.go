package auth

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"

	"auth-service/internal/apperr"
	"auth-service/internal/observability"
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxJSONBodyBytes  = 1 << 20
	minPasswordLength = 8
	maxPasswordLength = 200
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	if !emailRegex.MatchString(NormalizeEmail(body.Email)) {
		WriteError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	if len(body.Password) < minPasswordLength || len(body.Password) > maxPasswordLength {
		WriteError(w, http.StatusBadRequest, "password format is invalid")
		return
	}

	result, err := h.service.Register(r.Context(), RegisterInput{
		Email:     body.Email,
		Password:  body.Password,
		FirstName: strings.TrimSpace(body.FirstName),
		LastName:  strings.TrimSpace(body.LastName),
	}, clientInfo(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	if body.Email == "" || body.Password == "" {
		WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password, clientInfo(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	body.RefreshToken = strings.TrimSpace(body.RefreshToken)
	if body.RefreshToken == "" {
		WriteError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), body.RefreshToken, clientInfo(r))
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout runs behind the bearer middleware: the access token and user id come
// from the verified request context.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body logoutRequest
	if !DecodeJSON(w, r, &body) {
		return
	}

	userID := UserIDFromContext(r.Context())
	accessToken := AccessTokenFromContext(r.Context())

	if err := h.service.Logout(r.Context(), accessToken, strings.TrimSpace(body.RefreshToken), userID); err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func clientInfo(r *http.Request) ClientInfo {
	return ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: observability.ClientIP(r),
	}
}

// DecodeJSON reads a bounded JSON body into dest, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteServiceError maps a service failure onto the outward error shape.
// Unclassified errors are reported to sentry and surface as a 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	WriteError(w, status, apperr.Message(err))
}
