//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deliverytech-api/internal/app"
	"deliverytech-api/internal/config"
	"deliverytech-api/internal/database"
)

const (
	adminEmail    = "admin@deliverytech.com"
	adminPassword = "integration-admin"
	testSecret    = "integration-secret-0123456789abcdef"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	server *httptest.Server
	db     *database.DB
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	return &config.Config{
		ServerPort:              "0",
		ServerReadHeaderTimeout: 10 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       120 * time.Second,
		RequestTimeout:          15 * time.Second,
		DatabaseURL:             databaseURL,
		DBMaxConns:              5,
		DBMinConns:              1,
		JWTSecret:               testSecret,
		JWTRefreshTTL:           168 * time.Hour,
		RefreshCleanupInterval:  time.Hour,
		RefreshStore:            config.RefreshStorePostgres,
		CORSOrigins:             []string{"*"},
		RateLimitRPM:            0,
		AuthRateLimitRPM:        1000,
		BcryptCost:              4,
		AdminEmail:              adminEmail,
		AdminPassword:           adminPassword,
		LogFormat:               "json",
		LogLevel:                "error",
	}
}

// newHarness wipes the database, boots the app on top of it and returns a
// live server. Tests sharing the database must not run in parallel.
func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE audit_entries, deliveries, orders, products, refresh_tokens, users, restaurants RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	application, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)

	return &harness{server: server, db: db}
}

func (h *harness) do(t *testing.T, method string, path string, token string, body any) (int, envelope) {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, h.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

type session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
	Role         string `json:"role"`
}

func (h *harness) login(t *testing.T, email string, password string) session {
	t.Helper()

	status, env := h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status)

	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	require.NotEmpty(t, s.AccessToken)
	return s
}

// createUser registers a user through the admin API and returns its id.
func (h *harness) createUser(t *testing.T, adminToken string, body map[string]any) int64 {
	t.Helper()

	status, env := h.do(t, http.MethodPost, "/api/v1/admin/users", adminToken, body)
	require.Equal(t, http.StatusCreated, status)

	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	return created.ID
}
