package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverytech-api/internal/config"
	"deliverytech-api/internal/event"
	"deliverytech-api/internal/handler"
	"deliverytech-api/internal/metrics"
	"deliverytech-api/internal/middleware"
	"deliverytech-api/internal/model"
	"deliverytech-api/internal/service"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "s3cret-pass"
)

var errStoreDown = errors.New("connection refused")

type memoryUsers struct {
	mu   sync.Mutex
	next int64
	byID map[int64]model.User
	down bool
}

func (s *memoryUsers) FindByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return model.User{}, errStoreDown
	}
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (s *memoryUsers) FindByID(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := s.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *memoryUsers) Create(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	u.ID = s.next
	s.byID[u.ID] = u
	return u, nil
}

func (s *memoryUsers) SetActive(_ context.Context, id int64, active bool) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	u.Active = active
	s.byID[id] = u
	return u, nil
}

func (s *memoryUsers) List(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, u)
	}
	return out, nil
}

type memoryTokens struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
}

func (s *memoryTokens) Create(_ context.Context, t model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
	return nil
}

func (s *memoryTokens) FindByToken(_ context.Context, token string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return model.RefreshToken{}, model.ErrTokenNotFound
	}
	return t, nil
}

func (s *memoryTokens) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	delete(s.tokens, token)
	return ok, nil
}

func (s *memoryTokens) DeleteAllForUser(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *memoryTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type staticProducts struct{}

func (staticProducts) List(_ context.Context, q model.ProductQuery) ([]model.Product, model.Meta, error) {
	return []model.Product{{ID: 1, RestaurantID: 1, Name: "Pizza", PriceCents: 4500, Available: true}},
		model.Meta{Page: 1, Limit: 50, Total: 1, TotalPages: 1}, nil
}

func (staticProducts) FindByID(_ context.Context, id int64) (model.Product, error) {
	if id != 1 {
		return model.Product{}, model.ErrProductNotFound
	}
	return model.Product{ID: 1, RestaurantID: 1, Name: "Pizza", PriceCents: 4500, Available: true}, nil
}

type staticRestaurants struct{}

func (staticRestaurants) List(context.Context) ([]model.Restaurant, error) {
	return []model.Restaurant{{ID: 1, Name: "Cantina", Active: true}}, nil
}

func (staticRestaurants) FindByID(_ context.Context, id int64) (model.Restaurant, error) {
	return model.Restaurant{ID: id, Name: "Cantina", Active: true}, nil
}

type scopedOrders struct {
	lastScope model.OrderScope
}

func (s *scopedOrders) List(_ context.Context, scope model.OrderScope) ([]model.Order, error) {
	s.lastScope = scope
	return []model.Order{{ID: 10, CustomerID: scope.CustomerID, RestaurantID: 1, Status: "PENDENTE"}}, nil
}

func (s *scopedOrders) FindByID(_ context.Context, id int64, scope model.OrderScope) (model.Order, error) {
	s.lastScope = scope
	return model.Order{}, model.ErrOrderNotFound
}

func (s *scopedOrders) ListDeliveries(_ context.Context, scope model.OrderScope) ([]model.Delivery, error) {
	s.lastScope = scope
	return []model.Delivery{}, nil
}

type nopAudit struct{}

func (nopAudit) Log(context.Context, model.AuditEntry) error { return nil }

func (nopAudit) Query(context.Context, model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	return []model.AuditEntry{}, model.Meta{Page: 1, Limit: 50}, nil
}

type healthy struct{}

func (healthy) Health(context.Context) error { return nil }

type testServer struct {
	handler http.Handler
	users   *memoryUsers
	tokens  *memoryTokens
	orders  *scopedOrders
	codec   *service.TokenCodec
	refresh *service.RefreshTokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hasher := service.NewBcryptHasher(4)
	users := &memoryUsers{byID: map[int64]model.User{}}
	tokens := &memoryTokens{tokens: map[string]model.RefreshToken{}}
	orders := &scopedOrders{}
	m := metrics.New()
	bus := event.NewBus()

	codec := service.NewTokenCodec(testSecret)
	refresh := service.NewRefreshTokenService(tokens, 7*24*time.Hour, m)
	userService := service.NewUserService(users, hasher, refresh, bus)

	require.NoError(t, userService.EnsureAdmin(context.Background(), "admin@deliverytech.com", testPassword))
	digest, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	_, err = users.Create(context.Background(), model.User{Email: "cliente@deliverytech.com", PasswordHash: digest, Role: model.RoleCliente, Active: true})
	require.NoError(t, err)

	cfg := &config.Config{
		RequestTimeout:   5 * time.Second,
		RateLimitRPM:     0,
		AuthRateLimitRPM: 1000,
		CORSOrigins:      []string{"*"},
	}

	h := New(
		cfg,
		middleware.NewAuthMiddleware(codec, service.NewIdentityResolver(users), m),
		middleware.DefaultPolicy(m),
		m,
		Handlers{
			Auth:    handler.NewAuthHandler(service.NewAuthService(users, hasher, codec, refresh, bus)),
			Admin:   handler.NewAdminHandler(userService),
			Audit:   handler.NewAuditHandler(service.NewAuditService(nopAudit{})),
			Catalog: handler.NewCatalogHandler(service.NewCatalogService(staticProducts{}, staticRestaurants{}, orders)),
			Debug:   handler.NewDebugHandler(healthy{}),
		},
	)

	return &testServer{handler: h, users: users, tokens: tokens, orders: orders, codec: codec, refresh: refresh}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func (s *testServer) do(t *testing.T, method string, target string, token string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (s *testServer) login(t *testing.T, email string) model.LoginResult {
	t.Helper()

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, status)

	var result model.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	return result
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)

	result := s.login(t, "admin@deliverytech.com")
	assert.Equal(t, model.RoleAdmin, result.Role)
	assert.NotEmpty(t, result.RefreshToken)

	claims, err := s.codec.ParseAndVerify(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "admin@deliverytech.com", claims.Subject)
	assert.Equal(t, model.RoleAdmin, claims.Role)

	status, _ := s.do(t, http.MethodGet, "/api/v1/admin/users", result.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "admin@deliverytech.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	wrongPassword := *env.Error

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", model.LoginRequest{Email: "ghost@deliverytech.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, wrongPassword, *env.Error)
}

func TestPublicProductListingWithoutToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	status, _ = s.do(t, http.MethodGet, "/api/v1/products/1", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestPublicProductListingWithBrokenToken(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/v1/products", "garbage", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestClienteOnAdminRouteIsForbidden(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "cliente@deliverytech.com").AccessToken

	status, env := s.do(t, http.MethodGet, "/api/v1/admin/users", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestAnonymousOnRoleRouteIsUnauthorized(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"/api/v1/orders", "/api/v1/admin/users", "/api/v1/restaurants"} {
		status, env := s.do(t, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, target)
		require.NotNil(t, env.Error)
		assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
	}
}

func TestInvalidTokensGetTheSameAnswer(t *testing.T) {
	s := newTestServer(t)
	expired, err := service.NewTokenCodecWithClock(testSecret, func() time.Time { return time.Now().Add(-48 * time.Hour) }).
		Issue("cliente@deliverytech.com", service.AccessClaims{UserID: 2, Role: model.RoleCliente})
	require.NoError(t, err)

	var bodies []model.APIError
	for _, token := range []string{"garbage", expired, s.login(t, "cliente@deliverytech.com").AccessToken + "x"} {
		status, env := s.do(t, http.MethodGet, "/api/v1/orders", token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		require.NotNil(t, env.Error)
		bodies = append(bodies, *env.Error)
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
}

func TestDeactivatedUserLosesAccessImmediately(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@deliverytech.com")
	cliente := s.login(t, "cliente@deliverytech.com")

	status, _ := s.do(t, http.MethodGet, "/api/v1/orders", cliente.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, model.OrderScope{CustomerID: cliente.UserID}, s.orders.lastScope)

	status, _ = s.do(t, http.MethodPatch, "/api/v1/admin/users/2/status", admin.AccessToken, map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/orders", cliente.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: cliente.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_NOT_FOUND", env.Error.Code)
}

func TestRefreshFlow(t *testing.T) {
	s := newTestServer(t)
	login := s.login(t, "cliente@deliverytech.com")

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var refreshed model.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	old, err := service.NewRefreshTokenService(s.tokens, 7*24*time.Hour, nil).
		WithClock(func() time.Time { return time.Now().Add(-10 * 24 * time.Hour) }).
		Create(context.Background(), login.UserID)
	require.NoError(t, err)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: old.Token})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_EXPIRED", env.Error.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: old.Token})
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REFRESH_NOT_FOUND", env.Error.Code)
}

func TestLogoutRevokesAllSessions(t *testing.T) {
	s := newTestServer(t)
	first := s.login(t, "cliente@deliverytech.com")
	second := s.login(t, "cliente@deliverytech.com")

	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", first.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		status, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: token})
		assert.Equal(t, http.StatusUnauthorized, status)
	}
}

func TestMeAndWhoAmI(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "cliente@deliverytech.com").AccessToken

	status, _ := s.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	var me model.MeResponse
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "cliente@deliverytech.com", me.Email)
	assert.Equal(t, []string{"ROLE_CLIENTE"}, me.Authorities)

	status, env = s.do(t, http.MethodGet, "/api/v1/debug/whoami", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"authenticated":false`)
}

func TestStoreOutageIsNotReportedAsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "cliente@deliverytech.com").AccessToken
	s.users.down = true

	status, _ := s.do(t, http.MethodGet, "/api/v1/orders", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/products", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_policy_decisions_total")
}

func TestEncodedSlashesCannotEscapeTheAdminRule(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodPatch, "/api/v1/admin/users/%2F..%2F..%2F..%2Fv1%2Fauth%2Fx/status"},
		{http.MethodPatch, "/api/v1/admin/users/1/status"},
		{http.MethodGet, "/api/v1/orders/%2F..%2F..%2Fv1%2Fproducts%2F1"},
	} {
		req := httptest.NewRequest(tc.method, tc.target, bytes.NewReader([]byte(`{"active":false}`)))
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.target)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"), tc.target)
		assert.Contains(t, rec.Body.String(), `"UNAUTHORIZED"`, tc.target)
	}

	user, err := s.users.FindByID(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, user.Active)
}
