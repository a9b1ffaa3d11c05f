package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardcast/internal/auth"
	"github.com/gosuda/boardcast/internal/domain"
)

// Authenticator verifies a raw credential and returns the user it names.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// Auth rejects requests without a valid credential. The token is read from
// the Authorization header, or from the "token" query parameter since
// browsers cannot set headers on a WebSocket handshake.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authn.Authenticate(r.Context(), extractToken(r))
			if err != nil {
				reason := auth.Reason(err)
				status := http.StatusUnauthorized
				if reason == "AuthenticationUnavailable" {
					status = http.StatusServiceUnavailable
					log.Error().Err(err).Msg("auth: authenticate request")
				} else {
					log.Debug().Err(err).Str("reason", reason).Msg("auth: rejected credential")
				}
				writeProblem(w, status, reason)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func extractToken(r *http.Request) string {
	if tok := extractBearer(r); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"title":%q,"status":%d,"detail":%q}`, http.StatusText(status), status, detail)
}
