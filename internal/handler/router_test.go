package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/middleware"
	"github.com/dangerclosesec/tenantkit/internal/mocks"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testServiceKey = "svc-test-key"

type testAPI struct {
	handler     http.Handler
	tokens      *auth.TokenManager
	users       *mocks.MockUserRepositoryIface
	orgs        *mocks.MockOrganizationRepositoryIface
	invitations *mocks.MockInvitationRepositoryIface
	settings    *mocks.MockSettingRepositoryIface
	logs        *mocks.MockActivityLogRepositoryIface
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctrl := gomock.NewController(t)

	api := &testAPI{
		tokens:      auth.NewTokenManager("router-test-secret", "tenantkit", time.Hour),
		users:       mocks.NewMockUserRepositoryIface(ctrl),
		orgs:        mocks.NewMockOrganizationRepositoryIface(ctrl),
		invitations: mocks.NewMockInvitationRepositoryIface(ctrl),
		settings:    mocks.NewMockSettingRepositoryIface(ctrl),
		logs:        mocks.NewMockActivityLogRepositoryIface(ctrl),
	}

	logger := audit.NoOpLogger{}
	hasher := auth.NewPasswordHasherWithConfig(auth.PasswordConfig{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	gate := service.NewAdminGate(api.users)
	cache := service.NewCacheService(service.CacheConfig{Size: 16, TTL: time.Minute})
	settings := service.NewSettingsService(api.settings, cache, gate, logger)

	api.handler = NewRouter(RouterConfig{
		Tokens:        api.tokens,
		ServiceKey:    testServiceKey,
		Health:        NewHealthChecker("test"),
		Auth:          NewAuthHandler(service.NewAccountService(api.users, api.orgs, settings, gate, hasher, api.tokens, nil, logger)),
		Onboarding:    NewOnboardingHandler(service.NewOnboardingService(api.users, hasher, api.tokens, logger, "")),
		Settings:      NewSettingsHandler(settings),
		Invitations:   NewInvitationHandler(service.NewInvitationService(api.invitations, api.orgs, api.users, gate, nil, nil, logger, nil)),
		Organizations: NewOrganizationHandler(service.NewOrganizationService(api.orgs, gate, settings, nil, logger)),
		Users:         NewUserAdminHandler(service.NewUserAdminService(api.users, gate, hasher, logger, testServiceKey)),
		ActivityLogs:  NewActivityLogHandler(service.NewActivityLogService(api.logs, gate, nil)),
	})
	return api
}

func (a *testAPI) signIn(t *testing.T, role permission.Role) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.New(), Email: string(role) + "@example.com", Role: role, IsActive: true}
	a.users.EXPECT().FindByID(gomock.Any(), u.ID).Return(u, nil).AnyTimes()
	return u
}

func (a *testAPI) do(t *testing.T, method, path string, body string, user *model.User) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != nil {
		token, _, err := a.tokens.Generate(user.ID, user.Email, string(user.Role))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestPublicSettingsRoute(t *testing.T) {
	api := newTestAPI(t)
	api.settings.EXPECT().FindAll(gomock.Any()).Return([]*model.Setting{
		{Key: "site_name", Value: `"Acme Cloud"`},
	}, nil)

	rr := api.do(t, http.MethodGet, "/api/settings/public", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Acme Cloud", data["site_name"])
	assert.NotContains(t, data, "default_user_role")
}

func TestOnboardingStatusRoute(t *testing.T) {
	api := newTestAPI(t)
	api.users.EXPECT().CountByRole(gomock.Any(), permission.RoleSuperAdmin).Return(int64(0), nil)

	rr := api.do(t, http.MethodGet, "/api/onboarding/status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"data":{"needs_setup":true,"requires_token":false}}`, rr.Body.String())
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/auth/me", "/api/organizations", "/api/admin/users", "/api/invitations"} {
		rr := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, "/login", decode(t, rr)["redirect"], path)
	}
}

func TestAdminRoutesRejectRegularUsers(t *testing.T) {
	api := newTestAPI(t)
	user := api.signIn(t, permission.RoleUser)

	rr := api.do(t, http.MethodGet, "/api/admin/users", "", user)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "admin required", decode(t, rr)["error"])
}

func TestAdminUserList(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signIn(t, permission.RoleAdmin)

	bob := &model.User{ID: uuid.New(), Email: "bob@x.com", Role: permission.RoleUser, IsActive: true}
	api.users.EXPECT().List(gomock.Any(), gomock.Any()).Return([]*model.User{bob}, int64(1), nil)

	rr := api.do(t, http.MethodGet, "/api/admin/users?search=bob&page=1&page_size=10", "", admin)
	require.Equal(t, http.StatusOK, rr.Code)

	data := decode(t, rr)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])
	items := data["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "bob@x.com", items[0].(map[string]interface{})["email"])
}

func TestAdminUserExportCSV(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signIn(t, permission.RoleSuperAdmin)

	api.users.EXPECT().List(gomock.Any(), gomock.Any()).Return([]*model.User{
		{ID: uuid.New(), Email: "bob@x.com", Role: permission.RoleUser, IsActive: true},
		{ID: uuid.New(), Email: "carol@x.com", Role: permission.RoleModerator, IsActive: false},
	}, int64(2), nil)

	rr := api.do(t, http.MethodGet, "/api/admin/users/export?format=csv", "", admin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,email"))
	assert.Contains(t, lines[2], "carol@x.com")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	api := newTestAPI(t)
	admin := &model.User{ID: uuid.New(), Email: "root@example.com", Role: permission.RoleSuperAdmin, IsActive: true}

	rr := api.do(t, http.MethodGet, "/api/admin/users/export?format=xlsx", "", admin)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMalformedIDs(t *testing.T) {
	api := newTestAPI(t)
	user := &model.User{ID: uuid.New(), Email: "u@example.com", Role: permission.RoleUser, IsActive: true}

	rr := api.do(t, http.MethodGet, "/api/organizations/not-a-uuid", "", user)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid orgID", decode(t, rr)["error"])
}

func TestAcceptRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	user := &model.User{ID: uuid.New(), Email: "bob@x.com", Role: permission.RoleUser, IsActive: true}

	rr := api.do(t, http.MethodPost, "/api/invitations/accept", `{"token":"  "}`, user)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"success":false,"error":"Validation failed","errors":{"token":"is required"}}`, rr.Body.String())
}

func TestInvitationLookupNotFound(t *testing.T) {
	api := newTestAPI(t)
	api.invitations.EXPECT().FindByTokenHash(gomock.Any(), service.HashInvitationToken("missing")).
		Return(nil, domain.ErrInvitationNotFound)

	rr := api.do(t, http.MethodGet, "/api/invitations/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServiceExpireRoute(t *testing.T) {
	t.Run("rejects missing key", func(t *testing.T) {
		api := newTestAPI(t)
		rr := api.do(t, http.MethodPost, "/api/service/invitations/expire", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expires with key", func(t *testing.T) {
		api := newTestAPI(t)
		api.invitations.EXPECT().ExpireStale(gomock.Any(), gomock.Any()).Return(int64(3), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/service/invitations/expire", nil)
		req.Header.Set(middleware.ServiceKeyHeader, testServiceKey)
		rr := httptest.NewRecorder()
		api.handler.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true,"data":{"expired":3}}`, rr.Body.String())
	})
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/api/auth/login", `{"email":"a@b.com","password":"x","admin":true}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request payload", decode(t, rr)["error"])
}

func TestHealthRoute(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, StatusHealthy, decode(t, rr)["status"])
}

func TestClientAddrIgnoresForwardedForByDefault(t *testing.T) {
	var seen string
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")

	clientAddr(false)(echo).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.9:4321", seen)

	clientAddr(true)(echo).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.50", seen)
}
