package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"passport/internal/auth"
	"passport/internal/users"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func newSlogMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "status", recorder.status, "duration", duration.String())
		})
	}
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

// UserFromContext extracts the authenticated user from the request context.
// Returns nil if the auth middleware hasn't populated the context.
func UserFromContext(ctx context.Context) *users.User {
	user, _ := ctx.Value(userContextKey).(*users.User)
	return user
}

// bearerTokens lists the access token candidates: the cookie first, then the
// Authorization header.
func bearerTokens(r *http.Request, cookieName string) []string {
	var out []string
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		out = append(out, cookie.Value)
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// authenticate tries every candidate so a stale cookie does not shadow a
// valid header. The first failure is reported when none succeeds.
func authenticate(ctx context.Context, authService *auth.Service, candidates []string) (users.User, error) {
	if len(candidates) == 0 {
		return authService.Authenticate(ctx, "")
	}
	var firstErr error
	for _, token := range candidates {
		user, err := authService.Authenticate(ctx, token)
		if err == nil {
			return user, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return users.User{}, firstErr
}

func newAuthMiddleware(authService *auth.Service, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r.Context(), authService, bearerTokens(r, cookieName))
			if err != nil {
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				writeServiceError(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newSecurityHeadersMiddleware(environment string) func(http.Handler) http.Handler {
	isDev := strings.EqualFold(environment, "development")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Cache-Control", "no-store")

			if !isDev {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
