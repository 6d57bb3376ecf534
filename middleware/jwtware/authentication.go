package jwtware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DefaultContextKey is the fiber locals key holding the Authentication
const DefaultContextKey = "authentication"

// Authentication is the per request security context
type Authentication struct {
	Subject     string   `json:"subject"`
	Token       string   `json:"-"`
	SessionID   string   `json:"sessionId"`
	Authorities []string `json:"authorities"`
	Modules     []string `json:"modules,omitempty"`
}

// HasAuthority reports whether the roles claim carries code
func (a *Authentication) HasAuthority(code string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Authorities {
		if strings.EqualFold(r, code) {
			return true
		}
	}
	return false
}

// HasModule reports whether the modules claim carries code
func (a *Authentication) HasModule(code string) bool {
	if a == nil {
		return false
	}
	for _, m := range a.Modules {
		if strings.EqualFold(m, code) {
			return true
		}
	}
	return false
}

type authCtxKey struct{}

// WithAuthentication stores auth in ctx
func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authCtxKey{}, auth)
}

// FromContext returns the authentication published by the filter
func FromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authCtxKey{}).(*Authentication)
	return auth, ok && auth != nil
}

// FromLocals reads the authentication from fiber locals
func FromLocals(c *fiber.Ctx, key ...string) (*Authentication, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	auth, ok := c.Locals(k).(*Authentication)
	return auth, ok && auth != nil
}

// GuardConfig customizes how guards reject requests
type GuardConfig struct {
	ContextKey string
	// ErrorHandler receives http.StatusUnauthorized or http.StatusForbidden
	ErrorHandler func(c *fiber.Ctx, status int) error
}

func (g GuardConfig) reject(c *fiber.Ctx, status int) error {
	if g.ErrorHandler != nil {
		return g.ErrorHandler(c, status)
	}
	return c.Status(status).SendString(http.StatusText(status))
}

// RequireAuthenticated rejects anonymous requests
func RequireAuthenticated(cfg ...GuardConfig) fiber.Handler {
	var g GuardConfig
	if len(cfg) > 0 {
		g = cfg[0]
	}
	return func(c *fiber.Ctx) error {
		if _, ok := FromLocals(c, g.ContextKey); !ok {
			return g.reject(c, http.StatusUnauthorized)
		}
		return c.Next()
	}
}

// RequireAuthority rejects requests whose token has none of codes
func RequireAuthority(g GuardConfig, codes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth, ok := FromLocals(c, g.ContextKey)
		if !ok {
			return g.reject(c, http.StatusUnauthorized)
		}
		for _, code := range codes {
			if auth.HasAuthority(code) {
				return c.Next()
			}
		}
		return g.reject(c, http.StatusForbidden)
	}
}
