package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://app.deliverytech.com"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	preflight := func(origin string, method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/users/1/status", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", method)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("known origin may patch with a bearer token", func(t *testing.T) {
		rec := preflight("https://app.deliverytech.com", http.MethodPatch)
		assert.Equal(t, "https://app.deliverytech.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("unserved methods are not advertised", func(t *testing.T) {
		rec := preflight("https://app.deliverytech.com", http.MethodDelete)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		rec := preflight("https://evil.example", http.MethodGet)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("challenge header is readable by the browser", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.Header.Set("Origin", "https://app.deliverytech.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Expose-Headers")), "www-authenticate")
	})
}
