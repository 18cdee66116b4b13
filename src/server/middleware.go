package server

import (
	"net/http"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/auth"
	"autotrader/src/security"
)

// BasicAuth guards the control surface. With an empty hash every request is
// let through as the anonymous operator.
func BasicAuth(user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), "anonymous")))
				return
			}

			u, p, ok := r.BasicAuth()
			if !ok || !security.CheckCredentials(user, passwordHash, u, p) {
				logger.WithFields(map[string]interface{}{
					"remote": r.RemoteAddr,
					"path":   r.URL.Path,
				}).Warn("control surface auth failed")
				w.Header().Set("WWW-Authenticate", `Basic realm="autotrader"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), u)))
		})
	}
}
