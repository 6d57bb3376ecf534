package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrTokenMismatch = errors.New("CSRF token mismatch")
	ErrTokenMissing  = errors.New("CSRF token missing")
)

// DefaultTokenLength is the default length for CSRF tokens
const DefaultTokenLength = 32

// DefaultContextKey is the default key for storing CSRF tokens in context
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "_csrf"

// DefaultHeaderName is the header the client echoes the cookie value in
const DefaultHeaderName = "X-XSRF-TOKEN"

// DefaultCookieName is readable by scripts so clients can echo it
const DefaultCookieName = "XSRF-TOKEN"

// DefaultSafeMethods never require a token, only PATCH is checked
var DefaultSafeMethods = []string{
	fiber.MethodGet,
	fiber.MethodHead,
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodDelete,
	fiber.MethodOptions,
	fiber.MethodTrace,
}

// DefaultIgnoredPaths are exempt from the check
var DefaultIgnoredPaths = []string{"/api/"}

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(*fiber.Ctx) bool

	// TokenLength defines the length of the generated token
	TokenLength int

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// CookieName holds the expected token
	CookieName   string
	CookiePath   string
	CookieSecure bool
	Expiration   time.Duration

	// IgnoredPaths bypass the check when the request path starts with them
	IgnoredPaths []string

	// SafeMethods defines HTTP methods that don't require CSRF protection
	SafeMethods []string

	// ErrorHandler defines the error handler
	ErrorHandler func(*fiber.Ctx, error) error
}

// New creates a cookie to header double submit CSRF middleware
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Skip != nil && cfg.Skip(c) {
			return c.Next()
		}

		if isIgnored(c.Path(), cfg.IgnoredPaths) {
			return c.Next()
		}

		token := c.Cookies(cfg.CookieName)

		method := strings.ToUpper(c.Method())
		if !slices.Contains(cfg.SafeMethods, method) {
			if err := validateToken(c, cfg, token); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if token == "" {
			generated, err := generateToken(cfg.TokenLength)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			token = generated
			setCookie(c, cfg, token)
		}

		c.Locals(cfg.ContextKey, token)
		return c.Next()
	}
}

// validateToken compares the echoed token with the cookie
func validateToken(c *fiber.Ctx, cfg Config, expected string) error {
	received := extractToken(c, cfg)
	if received == "" || expected == "" {
		return ErrTokenMissing
	}

	if subtle.ConstantTimeCompare([]byte(received), []byte(expected)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// generateToken generates a cryptographically secure random token
func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func extractToken(c *fiber.Ctx, cfg Config) string {
	if token := c.Get(cfg.HeaderName); token != "" {
		return token
	}
	return c.FormValue(cfg.FormFieldName)
}

func setCookie(c *fiber.Ctx, cfg Config, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     cfg.CookiePath,
		Expires:  time.Now().Add(cfg.Expiration),
		Secure:   cfg.CookieSecure,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func isIgnored(path string, ignored []string) bool {
	for _, p := range ignored {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// configDefault returns a default config
func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength == 0 {
		cfg.TokenLength = DefaultTokenLength
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}

	if cfg.Expiration == 0 {
		cfg.Expiration = 24 * time.Hour
	}

	if cfg.IgnoredPaths == nil {
		cfg.IgnoredPaths = DefaultIgnoredPaths
	}

	if cfg.SafeMethods == nil {
		cfg.SafeMethods = DefaultSafeMethods
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	switch err {
	case ErrTokenMissing:
		return c.Status(fiber.StatusForbidden).SendString("CSRF token missing")
	case ErrTokenMismatch:
		return c.Status(fiber.StatusForbidden).SendString("CSRF token mismatch")
	default:
		return c.Status(fiber.StatusInternalServerError).SendString("CSRF validation error")
	}
}
