package auth_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-chassis-auth"
)

const configYAML = `
app:
  name: orders
server:
  prefix: /api/v2
  timeZone: Europe/Madrid
security:
  jwt:
    secret: from-file
    expiration: 60
  session:
    maxSessions: 3
    maxInactive: 10m
  cors:
    enabled: true
    allowed:
      origins: "https://a.example.com, https://b.example.com"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := auth.LoadConfig(writeConfig(t, configYAML))
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.App.Name)
	assert.Equal(t, "/api/v2", cfg.Server.Prefix)
	assert.Equal(t, "from-file", cfg.Security.JWT.Secret)
	assert.Equal(t, time.Minute, cfg.Security.JWT.AccessTTL())
	assert.Equal(t, 24*time.Hour, cfg.Security.JWT.RefreshTTL())
	assert.Equal(t, 3, cfg.Security.Session.MaxSessions)
	assert.Equal(t, 10*time.Minute, cfg.Security.Session.MaxInactive)
	assert.Equal(t, auth.SessionStoreMemory, cfg.Security.Session.Store)
	assert.True(t, cfg.Security.CORS.Enabled)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, auth.SplitList(cfg.Security.CORS.Allowed.Origins))
	assert.Equal(t, "Europe/Madrid", cfg.Location().String())
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHASSIS_SECURITY_JWT_SECRET", "from-env")
	t.Setenv("CHASSIS_SECURITY_SESSION_MAX_SESSIONS", "5")
	t.Setenv("CHASSIS_SECURITY_PUBLIC_PATHS", "/health,/docs/**")
	t.Setenv("CHASSIS_LOG_LEVEL", "debug")

	cfg, err := auth.LoadConfig(writeConfig(t, configYAML))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Security.JWT.Secret)
	assert.Equal(t, 5, cfg.Security.Session.MaxSessions)
	assert.Equal(t, []string{"/health", "/docs/**"}, cfg.Security.PublicPaths)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := auth.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = auth.LoadConfig(writeConfig(t, "security: [not a map"))
	assert.Error(t, err)

	_, err = auth.LoadConfig("")
	require.Error(t, err, "the signing secret has no default")
	assert.Equal(t, auth.TextCodeParamsValidation, auth.TextCode(err))
}

func TestConfigValidate(t *testing.T) {
	valid := auth.DefaultConfig()
	valid.Security.JWT.Secret = "s"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*auth.Config)
	}{
		{"no secret", func(c *auth.Config) { c.Security.JWT.Secret = "" }},
		{"no issuer", func(c *auth.Config) { c.Security.JWT.Issuer = "" }},
		{"negative expiration", func(c *auth.Config) { c.Security.JWT.Expiration = -1 }},
		{"zero sessions", func(c *auth.Config) { c.Security.Session.MaxSessions = 0 }},
		{"unknown store", func(c *auth.Config) { c.Security.Session.Store = "mongo" }},
		{"redis without url", func(c *auth.Config) { c.Security.Session.Store = auth.SessionStoreRedis }},
		{"unknown zone", func(c *auth.Config) { c.Server.TimeZone = "Mars/Olympus" }},
		{"header gate without names", func(c *auth.Config) {
			c.Security.AppValidatorFilter.AppHeaderNameValidationFilter = true
			c.Security.AppValidatorFilter.AppSelfName = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, auth.SplitList(" a, ,b ,"))
	assert.Empty(t, auth.SplitList(""))
}
