package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/odnarb/bigfoot-map/internal/safeerr"
	"github.com/odnarb/bigfoot-map/internal/service"
	"github.com/rs/zerolog/log"
)

// OptionalAuth attaches the caller's identity when a valid bearer token is
// present. Missing or invalid tokens continue anonymously.
func OptionalAuth(provider AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := readBearerToken(r.Header.Get(AuthorizationHeader))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := provider.VerifyToken(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Ignoring invalid token on optional auth route")
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(provider AuthProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := readBearerToken(r.Header.Get(AuthorizationHeader))
			if !ok {
				writeError(w, r, safeerr.New(safeerr.KindUnauthorized, CodeMissingToken, MsgMissingToken, nil))
				return
			}

			user, err := provider.VerifyToken(token)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg(LogJWTValidationFailed)
				writeError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// readBearerToken parses "Bearer <token>" with a case-insensitive scheme.
func readBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func withUser(ctx context.Context, user service.UserContext) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (service.UserContext, bool) {
	user, ok := ctx.Value(UserContextKey).(service.UserContext)
	return user, ok
}

// requestUser combines the authenticated user (if any) with the client id
// header, which identifies anonymous voters.
func requestUser(r *http.Request) service.UserContext {
	user, _ := UserFromContext(r.Context())
	user.ClientID = strings.TrimSpace(r.Header.Get(ClientIDHeader))
	return user
}
