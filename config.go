package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override
const EnvPrefix = "CHASSIS_"

const (
	SessionStoreMemory = "memory"
	SessionStoreSQL    = "sql"
	SessionStoreRedis  = "redis"
)

type Config struct {
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Security SecurityConfig `yaml:"security" envPrefix:"SECURITY_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"LOG_"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME"`
	Version     string `yaml:"version" env:"VERSION"`
	Build       string `yaml:"build" env:"BUILD"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

type ServerConfig struct {
	Address           string        `yaml:"address" env:"ADDRESS"`
	Prefix            string        `yaml:"prefix" env:"PREFIX"`
	TimeZone          string        `yaml:"timeZone" env:"TIME_ZONE"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"HEARTBEAT_INTERVAL"`
}

type SecurityConfig struct {
	JWT                JWTConfig                `yaml:"jwt" envPrefix:"JWT_"`
	CORS               CORSConfig               `yaml:"cors" envPrefix:"CORS_"`
	AppValidatorFilter AppValidatorFilterConfig `yaml:"appValidatorFilter" envPrefix:"APP_VALIDATOR_"`
	Session            SessionConfig            `yaml:"session" envPrefix:"SESSION_"`
	Password           PasswordConfig           `yaml:"password" envPrefix:"PASSWORD_"`
	AdminAuthority     string                   `yaml:"adminAuthority" env:"ADMIN_AUTHORITY"`
	PublicPaths        []string                 `yaml:"publicPaths" env:"PUBLIC_PATHS" envSeparator:","`
}

// JWTConfig expirations are expressed in seconds
type JWTConfig struct {
	Secret            string `yaml:"secret" env:"SECRET"`
	Issuer            string `yaml:"issuer" env:"ISSUER"`
	Expiration        int64  `yaml:"expiration" env:"EXPIRATION"`
	ExpirationRefresh int64  `yaml:"expirationRefresh" env:"EXPIRATION_REFRESH"`
}

type CORSConfig struct {
	Enabled bool        `yaml:"enabled" env:"ENABLED"`
	Allowed CORSAllowed `yaml:"allowed" envPrefix:"ALLOWED_"`
	Path    CORSPath    `yaml:"path" envPrefix:"PATH_"`
}

// CORSAllowed values are comma separated lists
type CORSAllowed struct {
	Origins string `yaml:"origins" env:"ORIGINS"`
	Methods string `yaml:"methods" env:"METHODS"`
	Headers string `yaml:"headers" env:"HEADERS"`
}

type CORSPath struct {
	Pattern string `yaml:"pattern" env:"PATTERN"`
}

type AppValidatorFilterConfig struct {
	AppSelfName                   string `yaml:"appSelfName" env:"SELF_NAME"`
	AppHeaderName                 string `yaml:"appHeaderName" env:"HEADER_NAME"`
	AppHeaderNameValidationFilter bool   `yaml:"appHeaderNameValidationFilter" env:"ENABLED"`
	AppSecurityName               string `yaml:"appSecurityName" env:"SECURITY_NAME"`
}

type SessionConfig struct {
	MaxSessions     int           `yaml:"maxSessions" env:"MAX_SESSIONS"`
	MaxInactive     time.Duration `yaml:"maxInactive" env:"MAX_INACTIVE"`
	Store           string        `yaml:"store" env:"STORE"`
	CleanupInterval time.Duration `yaml:"cleanupInterval" env:"CLEANUP_INTERVAL"`
}

type PasswordConfig struct {
	BcryptCost      int  `yaml:"bcryptCost" env:"BCRYPT_COST"`
	EnforceStrength bool `yaml:"enforceStrength" env:"ENFORCE_STRENGTH"`
}

type DatabaseConfig struct {
	DSN   string `yaml:"dsn" env:"DSN"`
	Debug bool   `yaml:"debug" env:"DEBUG"`
}

type RedisConfig struct {
	URL string `yaml:"url" env:"URL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns a config usable for local development, the
// signing secret is the only value that must always be provided.
func DefaultConfig() Config {
	return Config{
		App: AppConfig{
			Name:        "chassis",
			Version:     "0.0.0",
			Environment: "local",
		},
		Server: ServerConfig{
			Address:           ":8080",
			Prefix:            "/api/v1",
			TimeZone:          "UTC",
			HeartbeatInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer:            "chassis",
				Expiration:        900,
				ExpirationRefresh: 86400,
			},
			CORS: CORSConfig{
				Allowed: CORSAllowed{
					Origins: "http://localhost:4200",
					Methods: "GET,POST,PUT,DELETE,OPTIONS",
					Headers: "*",
				},
				Path: CORSPath{Pattern: "/**"},
			},
			AppValidatorFilter: AppValidatorFilterConfig{
				AppHeaderName: "X-App-Name",
			},
			Session: SessionConfig{
				MaxSessions:     1,
				MaxInactive:     30 * time.Minute,
				Store:           SessionStoreMemory,
				CleanupInterval: time.Minute,
			},
			Password: PasswordConfig{
				BcryptCost: DefaultBcryptCost,
			},
			AdminAuthority: RoleCodeAdmin,
			PublicPaths: []string{
				"/images/**",
				"/api/v1/error",
				"/api/v1/openapi/**",
				"/api/v1/version/**",
			},
		},
		Database: DatabaseConfig{
			DSN: "file:chassis.db?cache=shared",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig layers defaults, an optional YAML file and the environment
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks required values and ranges
func (c Config) Validate() error {
	jwt := c.Security.JWT
	session := c.Security.Session

	errs := validation.Errors{
		"security.jwt": validation.ValidateStruct(&jwt,
			validation.Field(&jwt.Secret, validation.Required),
			validation.Field(&jwt.Issuer, validation.Required),
			validation.Field(&jwt.Expiration, validation.Min(0)),
			validation.Field(&jwt.ExpirationRefresh, validation.Min(0)),
		),
		"security.session": validation.ValidateStruct(&session,
			validation.Field(&session.MaxSessions, validation.Required, validation.Min(1)),
			validation.Field(&session.Store, validation.In(SessionStoreMemory, SessionStoreSQL, SessionStoreRedis)),
		),
		"server.timeZone": validation.Validate(c.Server.TimeZone, validation.By(validTimeZone)),
	}

	if c.Security.AppValidatorFilter.AppHeaderNameValidationFilter {
		filter := c.Security.AppValidatorFilter
		errs["security.appValidatorFilter"] = validation.ValidateStruct(&filter,
			validation.Field(&filter.AppSelfName, validation.Required),
			validation.Field(&filter.AppHeaderName, validation.Required),
		)
	}

	if session.Store == SessionStoreRedis {
		errs["redis.url"] = validation.Validate(c.Redis.URL, validation.Required)
	}

	if err := errs.Filter(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration").
			WithTextCode(TextCodeParamsValidation)
	}
	return nil
}

// Location resolves the configured time zone, defaulting to UTC
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Server.TimeZone); err == nil {
		return loc
	}
	return time.UTC
}

// AccessTTL is the access token lifetime
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.Expiration) * time.Second
}

// RefreshTTL is the refresh token lifetime
func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.ExpirationRefresh) * time.Second
}

// SplitList splits a comma separated config value, dropping blanks
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validTimeZone(value any) error {
	zone, _ := value.(string)
	if zone == "" {
		return errors.New("time zone is required")
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return fmt.Errorf("unknown time zone %q", zone)
	}
	return nil
}
