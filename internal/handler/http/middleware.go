package http

import (
	"net/http"
	"strings"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/pkg/middleware"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// callerFromRequest builds the acting identity from the claims the Auth
// middleware stored in the request context.
func callerFromRequest(r *http.Request) domain.Caller {
	ctx := r.Context()
	return domain.Caller{
		UserID:   middleware.UserIDFromContext(ctx),
		Identity: middleware.UsernameFromContext(ctx),
		Role:     middleware.RoleFromContext(ctx),
	}
}
