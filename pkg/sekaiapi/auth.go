package sekaiapi

import (
	"net/http"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// requireAuth checks the x-haruki-sekai-token bearer against s.Auth,
// authorizing the caller for the `{server}` path segment, grounded on
// original_source/src/api/middleware.rs's auth_middleware. A nil or disabled
// Auth store lets every request through, matching the original's
// state.db.is_none() short-circuit.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Auth == nil || !s.Auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("x-haruki-sekai-token")
		if token == "" {
			writeError(w, apperror.New(apperror.KindAuthError, "missing token"))
			return
		}

		server := r.PathValue("server")
		if _, err := s.Auth.Authorize(token, server); err != nil {
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}
