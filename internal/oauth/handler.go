package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"auth-service/internal/apperr"
	"auth-service/internal/auth"
	"auth-service/internal/observability"
)

const (
	stateCookieName = "oauth_state"
	stateTTL        = 10 * time.Minute
)

// AccountReader is the authenticated account-management side, satisfied by
// Repository.
type AccountReader interface {
	FindAccount(ctx context.Context, provider, providerID string) (*Account, error)
	CreateAccount(ctx context.Context, account *Account) error
	ListAccounts(ctx context.Context, userID string) ([]Account, error)
	DeleteAccount(ctx context.Context, userID, provider string) error
}

type Handler struct {
	providers   Registry
	resolver    *Resolver
	accounts    AccountReader
	users       UserDirectory
	sessions    *auth.Service
	logger      *observability.Logger
	secureState bool
}

func NewHandler(providers Registry, resolver *Resolver, accounts AccountReader, users UserDirectory, sessions *auth.Service, logger *observability.Logger, secureState bool) *Handler {
	return &Handler{
		providers:   providers,
		resolver:    resolver,
		accounts:    accounts,
		users:       users,
		sessions:    sessions,
		logger:      logger,
		secureState: secureState,
	}
}

// Start redirects the browser to the provider's consent screen with a fresh
// anti-forgery state bound to a cookie.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers.Get(r.PathValue("provider"))
	if !ok {
		auth.WriteError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}

	state, err := newState()
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureState,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// Callback finishes the provider flow: state check, code exchange, user
// resolution, then a regular session issue.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers.Get(r.PathValue("provider"))
	if !ok {
		auth.WriteError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		auth.WriteError(w, http.StatusBadRequest, "provider denied the authorization")
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || cookie.Value != state {
		auth.WriteError(w, http.StatusBadRequest, "oauth state mismatch")
		return
	}
	clearStateCookie(w, h.secureState)

	code := r.URL.Query().Get("code")
	if code == "" {
		auth.WriteError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("oauth_exchange_failed", map[string]any{"provider": provider.Name(), "error": err.Error()})
		auth.WriteError(w, http.StatusBadGateway, "provider exchange failed")
		return
	}

	user, err := h.resolver.Resolve(r.Context(), *profile)
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}

	result, err := h.sessions.IssueSession(r.Context(), user, clientInfo(r))
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}

	auth.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"user":         result.User,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
	})
}

type linkRequest struct {
	Provider string `json:"provider"`
	Code     string `json:"code"`
}

// Link attaches a provider identity to the authenticated user.
func (h *Handler) Link(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var body linkRequest
	if !auth.DecodeJSON(w, r, &body) {
		return
	}

	provider, ok := h.providers.Get(body.Provider)
	if !ok {
		auth.WriteError(w, http.StatusNotFound, "unknown oauth provider")
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		auth.WriteError(w, http.StatusBadRequest, "code is required")
		return
	}

	profile, err := provider.Exchange(r.Context(), body.Code)
	if err != nil {
		h.logger.Warn("oauth_exchange_failed", map[string]any{"provider": provider.Name(), "error": err.Error()})
		auth.WriteError(w, http.StatusBadGateway, "provider exchange failed")
		return
	}

	existing, err := h.accounts.FindAccount(r.Context(), profile.Provider, profile.ProviderID)
	if err == nil {
		if existing.UserID == userID {
			auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "account": existing})
			return
		}
		auth.WriteServiceError(w, apperr.Conflict("identity already linked to another user"))
		return
	}
	if !errors.Is(err, auth.ErrNotFound) {
		auth.WriteServiceError(w, err)
		return
	}

	accountID, err := auth.NewID()
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	account := &Account{
		ID:         accountID,
		UserID:     userID,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	}
	if err := h.accounts.CreateAccount(r.Context(), account); err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			auth.WriteServiceError(w, apperr.Conflict("identity already linked to another user"))
			return
		}
		auth.WriteServiceError(w, err)
		return
	}

	auth.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "account": account})
}

// List returns the provider identities linked to the authenticated user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "accounts": accounts})
}

// Unlink removes a linked identity. A user whose only way in is that identity
// keeps it: unlinking would lock the account with no password to fall back on.
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	providerName := strings.ToLower(r.PathValue("provider"))

	user, err := h.users.GetUserByID(r.Context(), userID)
	if err != nil {
		auth.WriteServiceError(w, err)
		return
	}

	if !user.HasPassword() {
		accounts, err := h.accounts.ListAccounts(r.Context(), userID)
		if err != nil {
			auth.WriteServiceError(w, err)
			return
		}
		if len(accounts) <= 1 {
			auth.WriteServiceError(w, apperr.BadRequest("cannot unlink the only sign-in method"))
			return
		}
	}

	if err := h.accounts.DeleteAccount(r.Context(), userID, providerName); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			auth.WriteServiceError(w, apperr.NotFound("no linked account for provider"))
			return
		}
		auth.WriteServiceError(w, err)
		return
	}

	auth.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: r.UserAgent(),
		IPAddress: observability.ClientIP(r),
	}
}

func clearStateCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
