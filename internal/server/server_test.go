package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"registry-backend/internal/auth"
	"registry-backend/internal/config"
	"registry-backend/internal/database"
	"registry-backend/internal/server"
	"registry-backend/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// fasthttp refreshes its cached Date header from a process-wide goroutine.
		goleak.IgnoreAnyFunction("github.com/valyala/fasthttp.updateServerDate.func1"),
		goleak.IgnoreAnyFunction("github.com/valyala/fasthttp.updateServerDate.func1.1"),
	)
}

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c *client) do(method, target, token, body string) (int, map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (c *client) list(target, token string) (int, []map[string]any) {
	c.t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var out []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (c *client) login(name, password string) string {
	c.t.Helper()
	status, out := c.do(http.MethodPost, "/users/login", "", fmt.Sprintf(`{"user_name":%q,"password":%q}`, name, password))
	require.Equal(c.t, http.StatusOK, status, "login %s: %v", name, out)
	token, _ := out["token"].(string)
	require.NotEmpty(c.t, token)
	return token
}

func setup(t *testing.T) *client {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		TokenSecret:        "0123456789abcdef0123456789abcdef",
		BcryptCost:         bcrypt.MinCost,
		TempPasswordLength: 12,
		CORSOrigins:        "http://localhost:5173",
		MetricsEnabled:     true,
	}
	require.NoError(t, database.Seed(context.Background(), db, auth.NewHasher(cfg.BcryptCost), "123456", zap.NewNop()))
	app := server.New(server.Deps{Config: cfg, DB: db, Logger: zap.NewNop()})
	return &client{t: t, app: app}
}

func TestPublicRoutes(t *testing.T) {
	c := setup(t)

	status, out := c.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := c.app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	for _, target := range []string{"/users", "/branches", "/townships", "/me", "/audit-logs"} {
		status, _ := c.do(http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, status, target)
	}

	status, _ = c.do(http.MethodGet, "/townships", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegistryLifecycle(t *testing.T) {
	c := setup(t)

	// The seeded admin has to replace its password first.
	token := c.login("admin", "123456")
	status, _ := c.do(http.MethodGet, "/townships", token, "")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = c.do(http.MethodGet, "/me", token, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = c.do(http.MethodPost, "/users/1/change-password", token, `{"old_password":"123456","new_password":"s3cret!"}`)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, status, "tokens are revoked on password change")

	token = c.login("admin", "s3cret!")

	// Townships
	status, out := c.do(http.MethodPost, "/townships", token, `{"name":"Mandalay"}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, out["id"])

	status, out = c.do(http.MethodPost, "/townships", token, `{"name":"Yangon"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, out["errors"], "name")

	status, out = c.do(http.MethodPut, "/townships/2", token, `{"name":"Mandalay"}`)
	assert.Equal(t, http.StatusOK, status, "%v", out)

	// Branches
	status, out = c.do(http.MethodPost, "/branches", token, `{"name":"Chanayethazan","township_id":2}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, out["id"])

	status, out = c.do(http.MethodPost, "/branches", token, `{"name":"North Dagon","township_id":1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, out["errors"], "name")

	status, townships := c.list("/townships?expand=branches", token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, townships, 2)
	assert.Len(t, townships[1]["branches"], 1)

	// Users
	status, out = c.do(http.MethodPost, "/users", token, `{"user_name":"clerk","branch_id":2}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, out["id"])
	temp, _ := out["temporary_password"].(string)
	require.NotEmpty(t, temp)

	status, _ = c.do(http.MethodPost, "/users", token, `{"user_name":"clerk","branch_id":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status, "duplicate user_name")

	status, users := c.list("/users?expand=branch", token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0]["user_name"])
	assert.NotContains(t, users[0], "password")

	status, out = c.do(http.MethodGet, "/users/2", token, "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, out, "branch")

	// Deletes are restricted while dependents exist.
	status, _ = c.do(http.MethodDelete, "/townships/2", token, "")
	assert.Equal(t, http.StatusConflict, status)
	status, _ = c.do(http.MethodDelete, "/branches/2", token, "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = c.do(http.MethodDelete, "/users/2", token, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodDelete, "/branches/2", token, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodDelete, "/townships/2", token, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/townships/2", token, "")
	assert.Equal(t, http.StatusNotFound, status)

	// Reset hands out a temporary password and signs the user out.
	status, out = c.do(http.MethodPost, "/users/1/reset-password", token, "")
	require.Equal(t, http.StatusOK, status)
	temp, _ = out["temporary_password"].(string)
	require.NotEmpty(t, temp)
	status, _ = c.do(http.MethodGet, "/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	token = c.login("admin", temp)
	status, _ = c.do(http.MethodGet, "/audit-logs", token, "")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = c.do(http.MethodPost, "/users/1/change-password", token, fmt.Sprintf(`{"old_password":%q,"new_password":"another1"}`, temp))
	require.Equal(t, http.StatusOK, status)
	token = c.login("admin", "another1")

	status, logs := c.list("/audit-logs?entity_type=township", token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, logs, 3)
	assert.Equal(t, "delete", logs[0]["action"])
	assert.Equal(t, "admin", logs[0]["user_name"])

	status, _ = c.do(http.MethodPost, "/users/logout", token, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}
