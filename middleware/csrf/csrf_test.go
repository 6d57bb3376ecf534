package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(cfg ...Config) *fiber.App {
	app := fiber.New()
	app.Use(New(cfg...))
	handler := func(c *fiber.Ctx) error {
		token, _ := c.Locals(DefaultContextKey).(string)
		return c.SendString(token)
	}
	app.Get("/page", handler)
	app.Patch("/page", handler)
	app.Post("/page", handler)
	app.Patch("/api/v1/page", handler)
	app.Patch("/docs/api/page", handler)
	return app
}

func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestSafeMethodIssuesCookie(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/page", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	token := cookieValue(resp, DefaultCookieName)
	assert.Len(t, token, DefaultTokenLength*2)
}

func TestUnsafeMethodRequiresToken(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		name   string
		cookie string
		header string
		status int
	}{
		{name: "missing", status: http.StatusForbidden},
		{name: "mismatch", cookie: "abc", header: "def", status: http.StatusForbidden},
		{name: "match", cookie: "abc", header: "abc", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPatch, "/page", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(DefaultHeaderName, tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestPostAndAPIPathsAreExempt(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/page", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPatch, "/api/v1/page", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNestedAPISegmentIsChecked(t *testing.T) {
	app := newTestApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/docs/api/page", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCustomErrorHandler(t *testing.T) {
	var captured error
	app := newTestApp(Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			captured = err
			return c.SendStatus(http.StatusTeapot)
		},
	})

	req := httptest.NewRequest(http.MethodPatch, "/page", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "abc"})
	req.Header.Set(DefaultHeaderName, "tampered")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.ErrorIs(t, captured, ErrTokenMismatch)
}
