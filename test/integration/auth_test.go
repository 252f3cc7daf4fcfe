//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminLoginRefreshAndLogout(t *testing.T) {
	h := newHarness(t, testConfig(t))

	admin := h.login(t, adminEmail, adminPassword)
	assert.Equal(t, "ADMIN", admin.Role)
	require.NotEmpty(t, admin.RefreshToken)

	status, _ := h.do(t, http.MethodGet, "/api/v1/auth/me", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": admin.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var refreshed session
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	status, _ = h.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"refresh_token": admin.RefreshToken})
	require.Equal(t, http.StatusOK, status)

	status, env = h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": admin.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_NOT_FOUND", env.Error.Code)
}

func TestExpiredRefreshTokenIsRemovedOnUse(t *testing.T) {
	h := newHarness(t, testConfig(t))
	admin := h.login(t, adminEmail, adminPassword)

	ctx := context.Background()
	_, err := h.db.Pool.Exec(ctx, `INSERT INTO refresh_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		"stale-token", admin.UserID, time.Now().Add(-3*24*time.Hour))
	require.NoError(t, err)

	status, env := h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": "stale-token"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_EXPIRED", env.Error.Code)

	var remaining int
	require.NoError(t, h.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM refresh_tokens WHERE token = $1`, "stale-token").Scan(&remaining))
	assert.Zero(t, remaining)

	status, env = h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": "stale-token"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_NOT_FOUND", env.Error.Code)
}

func TestDeactivationCutsOffExistingTokens(t *testing.T) {
	h := newHarness(t, testConfig(t))
	admin := h.login(t, adminEmail, adminPassword)

	id := h.createUser(t, admin.AccessToken, map[string]any{
		"email":    "cliente@deliverytech.com",
		"password": "cliente-pass",
		"role":     "CLIENTE",
	})
	cliente := h.login(t, "cliente@deliverytech.com", "cliente-pass")

	status, _ := h.do(t, http.MethodGet, "/api/v1/orders", cliente.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodGet, "/api/v1/admin/users", cliente.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(t, http.MethodPatch, "/api/v1/admin/users/"+itoa(id)+"/status", admin.AccessToken, map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, status)

	status, _ = h.do(t, http.MethodGet, "/api/v1/orders", cliente.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "cliente@deliverytech.com", "password": "cliente-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
}

func TestSecurityEventsReachTheAuditTrail(t *testing.T) {
	h := newHarness(t, testConfig(t))

	status, _ := h.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, status)
	admin := h.login(t, adminEmail, adminPassword)

	require.Eventually(t, func() bool {
		status, env := h.do(t, http.MethodGet, "/api/v1/admin/audit?action=login.failed", admin.AccessToken, nil)
		if status != http.StatusOK {
			return false
		}
		var data struct {
			Items []struct {
				Action string `json:"action"`
				Status string `json:"status"`
			} `json:"items"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return false
		}
		return len(data.Items) == 1 && data.Items[0].Status == "failure"
	}, 5*time.Second, 50*time.Millisecond)
}
