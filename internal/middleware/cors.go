package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

// CORS admits browser clients of the delivery apps. Credentials travel in
// the Authorization header, never in cookies, so credentialed CORS stays off
// and "*" is safe as an origin list.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPatch},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "WWW-Authenticate", "Retry-After"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	})

	return handler.Handler
}
