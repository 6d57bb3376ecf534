package auth_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-chassis-auth"
	"github.com/goliatone/go-chassis-auth/i18n"
)

const (
	testSecret = "test-secret"
	apiPrefix  = "/api/v1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestDB(t *testing.T) (*bun.DB, auth.RepositoryManager) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	repo := auth.NewRepositoryManager(db)

	ctx := context.Background()
	require.NoError(t, auth.CreateSchema(ctx, db))
	require.NoError(t, auth.SeedRoles(ctx, repo))

	return db, repo
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.Security.JWT.Secret = testSecret
	cfg.Security.Password.BcryptCost = bcrypt.MinCost
	return cfg
}

type testEnv struct {
	t        *testing.T
	cfg      auth.Config
	clock    *testClock
	repo     auth.RepositoryManager
	sessions *auth.MemorySessionRegistry
	auther   *auth.Auther
	app      *fiber.App
}

func newTestEnv(t *testing.T, mutate ...func(*auth.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	clock := newTestClock()
	_, repo := setupTestDB(t)

	sessions := auth.NewMemorySessionRegistry(
		auth.WithRegistryClock(clock.Now),
		auth.WithRegistryMaxInactive(cfg.Security.Session.MaxInactive),
	)

	tokens := auth.NewTokenService(cfg.Security.JWT, auth.WithTokenClock(clock.Now))

	auther := auth.NewAuther(repo, tokens, sessions, cfg.Security).
		WithClock(clock.Now)

	app := auth.NewApp(auth.AppOptions{
		Config: cfg,
		Auther: auther,
		Bundle: mustBundle(t),
	})

	return &testEnv{
		t:        t,
		cfg:      cfg,
		clock:    clock,
		repo:     repo,
		sessions: sessions,
		auther:   auther,
		app:      app,
	}
}

func mustBundle(t *testing.T) *i18n.Bundle {
	t.Helper()

	bundle, err := i18n.New("es")
	require.NoError(t, err)
	return bundle
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func (e *testEnv) do(method, target string, body any, opts ...requestOption) *http.Response {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, apiPrefix+target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

// registerPending registers a user and returns its verification token
func (e *testEnv) registerPending(username, email, password string) string {
	e.t.Helper()

	resp := e.do(http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	envelope := decode[auth.Envelope](e.t, resp)
	token, ok := envelope.Content.(string)
	require.True(e.t, ok)
	return token
}

// registerActive registers and verifies a user through the HTTP surface
func (e *testEnv) registerActive(username, email, password string) {
	e.t.Helper()

	token := e.registerPending(username, email, password)
	resp := e.do(http.MethodPut, "/auth/verify?t="+token, nil)
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (e *testEnv) login(username, password string, opts ...requestOption) *http.Response {
	e.t.Helper()
	return e.do(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, opts...)
}

// mustLogin logs in and returns the tokens plus the session id header
func (e *testEnv) mustLogin(username, password string) (auth.Tokens, string) {
	e.t.Helper()

	resp := e.login(username, password)
	require.Equal(e.t, http.StatusOK, resp.StatusCode)
	sessionID := resp.Header.Get(auth.HeaderSessionID)
	return decode[auth.Tokens](e.t, resp), sessionID
}

func (e *testEnv) user(username string) auth.UserView {
	e.t.Helper()

	view, err := e.auther.GetUser(context.Background(), username)
	require.NoError(e.t, err)
	return view
}

func (e *testEnv) grant(username string, roles ...string) {
	e.t.Helper()

	ctx := context.Background()
	err := e.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := e.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			return err
		}
		return e.repo.Users().AssignRolesTx(ctx, tx, u, roles...)
	})
	require.NoError(e.t, err)
}
