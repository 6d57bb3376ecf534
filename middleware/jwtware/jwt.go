package jwtware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Response bodies written by the filter
const (
	MessageTokenExpired = "JWT Token expirado"
	MessageTokenInvalid = "Error al verificar el Token"
	MessageServerError  = "Error en el Servidor"
)

var (
	// ErrTokenExpired must be returned (or wrapped) by validators for expired tokens
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionNotFound must be returned (or wrapped) by session lookups for dead sessions
	ErrSessionNotFound = errors.New("session not found")

	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// Verified is the subset of token claims the filter needs
type Verified struct {
	Subject     string
	SessionID   string
	Authorities []string
	Modules     []string
}

// TokenValidator mirrors the auth token service without importing it
type TokenValidator interface {
	Validate(token string) (*Verified, error)
}

// SessionLookup reports whether a session is still live
type SessionLookup interface {
	Lookup(ctx context.Context, sessionID string) error
	Touch(ctx context.Context, sessionID string) error
}

// Logger is satisfied by the auth package logger
type Logger interface {
	Error(format string, args ...any)
}

type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(*fiber.Ctx) bool
	// TokenValidator is required for token validation
	TokenValidator TokenValidator
	// Sessions is required, tokens are only honored while their session lives
	Sessions SessionLookup
	// Prefix is prepended to the auth endpoints allowlist, e.g. /api/v1
	Prefix string
	// PublicPaths are extra patterns, /** matches any suffix
	PublicPaths []string
	ContextKey  string
	AuthScheme  string
	// Observe receives one outcome per request, used for metrics
	Observe func(outcome string)
	Logger  Logger
}

// Outcomes passed to Config.Observe
const (
	OutcomeAnonymous     = "anonymous"
	OutcomeAuthenticated = "authenticated"
	OutcomeExpired       = "expired"
	OutcomeInvalid       = "invalid"
	OutcomeError         = "error"
)

// authEndpoints never require a token
var authEndpoints = []string{
	"/auth/register",
	"/auth/verify",
	"/auth/login",
	"/auth/refresh",
	"/auth/logout",
	"/auth/check",
}

// New returns the request auth filter. Requests without a bearer token
// pass through anonymous, route guards decide what they may access.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	matcher := NewPathMatcher(cfg.allowlist()...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		if c.Method() == fiber.MethodOptions || matcher.Match(c.Path()) {
			cfg.observe(OutcomeAnonymous)
			return c.Next()
		}

		raw, terr := ExtractBearer(c, cfg.AuthScheme)
		if terr != nil {
			cfg.observe(OutcomeAnonymous)
			return c.Next()
		}

		auth, status, message, outcome := cfg.authenticate(c, raw)
		cfg.observe(outcome)
		if status != 0 {
			clearAuthentication(c, cfg.ContextKey)
			return c.Status(status).SendString(message)
		}

		c.Locals(cfg.ContextKey, auth)
		c.SetUserContext(WithAuthentication(c.UserContext(), auth))

		return c.Next()
	}
}

// authenticate verifies the token and its session. A non zero status
// means the request must be rejected with message.
func (cfg Config) authenticate(c *fiber.Ctx, raw string) (auth *Authentication, status int, message, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			cfg.logError("auth filter panic: %v", r)
			auth, status, message, outcome = nil, http.StatusInternalServerError, MessageServerError, OutcomeError
		}
	}()

	verified, err := cfg.TokenValidator.Validate(raw)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, http.StatusUnauthorized, MessageTokenExpired, OutcomeExpired
		}
		return nil, http.StatusUnauthorized, MessageTokenInvalid, OutcomeInvalid
	}

	if verified == nil || verified.Subject == "" || verified.SessionID == "" {
		return nil, http.StatusUnauthorized, MessageTokenInvalid, OutcomeInvalid
	}

	ctx := c.UserContext()
	if err := cfg.Sessions.Lookup(ctx, verified.SessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, http.StatusUnauthorized, MessageTokenExpired, OutcomeExpired
		}
		cfg.logError("auth filter session lookup failed: %v", err)
		return nil, http.StatusInternalServerError, MessageServerError, OutcomeError
	}

	if err := cfg.Sessions.Touch(ctx, verified.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		cfg.logError("auth filter session touch failed: %v", err)
	}

	return &Authentication{
		Subject:     verified.Subject,
		Token:       raw,
		SessionID:   verified.SessionID,
		Authorities: verified.Authorities,
		Modules:     verified.Modules,
	}, 0, "", OutcomeAuthenticated
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.Sessions == nil {
		panic("AUTH: JWT middleware configuration: Sessions is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	cfg.Prefix = strings.TrimRight(cfg.Prefix, "/")

	return cfg
}

func (cfg Config) allowlist() []string {
	patterns := make([]string, 0, len(authEndpoints)+len(cfg.PublicPaths))
	for _, p := range authEndpoints {
		patterns = append(patterns, cfg.Prefix+p)
	}
	return append(patterns, cfg.PublicPaths...)
}

func (cfg Config) observe(outcome string) {
	if cfg.Observe != nil {
		cfg.Observe(outcome)
	}
}

func (cfg Config) logError(format string, args ...any) {
	if cfg.Logger != nil {
		cfg.Logger.Error(format, args...)
		return
	}
	fmt.Printf("[ERR] JWTWARE "+format+"\n", args...)
}

// ExtractBearer reads the token from the Authorization header
func ExtractBearer(c *fiber.Ctx, authScheme string) (string, error) {
	a := c.Get(fiber.HeaderAuthorization)
	l := len(authScheme)
	if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
		if token := strings.TrimSpace(a[l:]); token != "" {
			return token, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}

func clearAuthentication(c *fiber.Ctx, key string) {
	c.Locals(key, nil)
}
