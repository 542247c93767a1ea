package dashboardhttp

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ClientCookie carries the generated client id between requests.
	ClientCookie = "rpay_client"
	// ClientHeader lets API callers supply their own client id.
	ClientHeader = "X-Client-ID"

	clientCookieTTL = 365 * 24 * time.Hour
	maxClientIDLen  = 64
)

type clientIDKey struct{}

// ClientID resolves the caller identity that selections are persisted under. The
// header wins over the cookie; a missing id is generated and set as a cookie.
func ClientID(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := validClientID(r.Header.Get(ClientHeader))
			if id == "" {
				if cookie, err := r.Cookie(ClientCookie); err == nil {
					id = validClientID(cookie.Value)
				}
			}
			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     ClientCookie,
					Value:    id,
					Path:     "/",
					MaxAge:   int(clientCookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithClientID(r.Context(), id)))
		})
	}
}

// WithClientID stores id on ctx.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientIDFromContext returns the id stored by the ClientID middleware.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}

func validClientID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxClientIDLen {
		return ""
	}
	for _, r := range id {
		if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return ""
		}
	}
	return id
}
