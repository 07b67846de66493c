package auth

import (
	"context"
	"net/http"
	"strings"

	"auth-service/internal/token"
)

type contextKey string

const (
	contextKeyUserID      contextKey = "auth.userID"
	contextKeyAccessToken contextKey = "auth.accessToken"
)

// UserIDFromContext returns the authenticated user id injected by Middleware,
// or "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(contextKeyUserID).(string)
	return value
}

// AccessTokenFromContext returns the raw bearer token of the request.
func AccessTokenFromContext(ctx context.Context) string {
	value, _ := ctx.Value(contextKeyAccessToken).(string)
	return value
}

// Blacklist is the read side of the access token blacklist, satisfied by
// Store.
type Blacklist interface {
	IsAccessTokenBlacklisted(ctx context.Context, tokenHash string) (bool, error)
}

// Middleware authenticates requests with a bearer access token. A token that
// verifies but sits on the blacklist is rejected the same way as a forged
// one.
func Middleware(issuer *token.Issuer, blacklist Blacklist, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			WriteError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			WriteError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims, err := issuer.VerifyKind(tokenStr, token.KindAccess)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		blacklisted, err := blacklist.IsAccessTokenBlacklisted(r.Context(), HashToken(tokenStr))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if blacklisted {
			WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.Subject)
		ctx = context.WithValue(ctx, contextKeyAccessToken, tokenStr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
