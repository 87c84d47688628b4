package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gehnabox/orders-service/internal/domain"
)

// Session is the authenticated identity attached to a request context.
type Session struct {
	UserID int64
	Name   string
	Role   domain.Role
}

type contextKey struct{}

var sessionKey contextKey

func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	return sess, ok
}

// Middleware validates the session cookie and guards routes by role.
type Middleware struct {
	tokens *TokenService
	logger *slog.Logger
}

func NewMiddleware(tokens *TokenService, logger *slog.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// Require wraps a handler so only sessions with one of the given roles get
// through. A missing or invalid cookie is 401; a valid session with the
// wrong role is 403 with no detail about the target resource.
func (m *Middleware) Require(roles ...domain.Role) func(http.HandlerFunc) http.HandlerFunc {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := m.tokens.Validate(cookie.Value)
			if err != nil {
				m.logger.Info("rejected session token", "error", err)
				writeMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if len(allowed) > 0 && !allowed[claims.Role] {
				writeMessage(w, http.StatusForbidden, "access denied")
				return
			}

			sess := &Session{UserID: claims.UserID, Name: claims.Name, Role: claims.Role}
			next(w, r.WithContext(ContextWithSession(r.Context(), sess)))
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
