package secure_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-chassis-auth/middleware/secure"
)

func TestHeaders(t *testing.T) {
	app := fiber.New()
	app.Use(secure.Headers())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, secure.DefaultContentSecurityPolicy, resp.Header.Get("Content-Security-Policy"))
	assert.Equal(t, secure.DefaultContentSecurityPolicy, resp.Header.Get(secure.HeaderXContentSecurityPolicy))
	assert.Equal(t, secure.DefaultContentSecurityPolicy, resp.Header.Get(secure.HeaderXWebKitCSP))
}

func TestCORS(t *testing.T) {
	newApp := func(cfg secure.CORSConfig) *fiber.App {
		app := fiber.New()
		app.Use(secure.CORS(cfg))
		app.Get("/api/v1/users", func(c *fiber.Ctx) error { return c.SendString("ok") })
		app.Get("/internal", func(c *fiber.Ctx) error { return c.SendString("ok") })
		return app
	}

	cfg := secure.CORSConfig{
		Enabled:     true,
		Origins:     []string{"http://localhost:4200"},
		Methods:     []string{"GET", "POST"},
		Headers:     []string{"Authorization"},
		PathPattern: "/api/**",
	}

	tests := []struct {
		name   string
		cfg    secure.CORSConfig
		target string
		origin string
		want   string
	}{
		{name: "allowed origin", cfg: cfg, target: "/api/v1/users", origin: "http://localhost:4200", want: "http://localhost:4200"},
		{name: "unknown origin", cfg: cfg, target: "/api/v1/users", origin: "http://evil.test", want: ""},
		{name: "outside pattern", cfg: cfg, target: "/internal", origin: "http://localhost:4200", want: ""},
		{name: "disabled", cfg: secure.CORSConfig{}, target: "/api/v1/users", origin: "http://localhost:4200", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("Origin", tt.origin)

			resp, err := newApp(tt.cfg).Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Access-Control-Allow-Origin"))
		})
	}
}
