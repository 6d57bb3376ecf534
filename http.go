package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-chassis-auth/i18n"
	"github.com/goliatone/go-chassis-auth/middleware/headergate"
	"github.com/goliatone/go-chassis-auth/middleware/jwtware"
)

const (
	// CookieName holds the base64 JSON token bundle read by /auth/check
	CookieName = "AUTH-JWT"
	// HeaderSessionID carries the current session id of clients without a bearer
	HeaderSessionID = "X-Session-Id"
)

// RouteAuthenticator binds the Auther to fiber: request filters, guards
// and the auth cookie.
type RouteAuthenticator struct {
	auth           *Auther
	cfg            Config
	bundle         *i18n.Bundle
	metrics        *Metrics
	cookieDuration time.Duration
	Logger         Logger
}

func NewHTTPAuthenticator(auther *Auther, cfg Config, bundle *i18n.Bundle) *RouteAuthenticator {
	cookieDuration := cfg.Security.JWT.RefreshTTL()
	if cookieDuration <= 0 {
		cookieDuration = 24 * time.Hour
	}

	return &RouteAuthenticator{
		auth:           auther,
		cfg:            cfg,
		bundle:         bundle,
		cookieDuration: cookieDuration,
		Logger:         defLogger{},
	}
}

// WithMetrics reports filter outcomes to m
func (a *RouteAuthenticator) WithMetrics(m *Metrics) *RouteAuthenticator {
	a.metrics = m
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// ProtectedRoute returns the request auth filter. It publishes the
// authentication of valid bearers and lets anonymous requests through.
func (a *RouteAuthenticator) ProtectedRoute() fiber.Handler {
	cfg := jwtware.Config{
		TokenValidator: FilterValidator(a.auth.TokenService()),
		Sessions:       FilterSessions(a.auth.Sessions()),
		Prefix:         a.cfg.Server.Prefix,
		PublicPaths:    a.cfg.Security.PublicPaths,
		Logger:         a.Logger,
	}
	if a.metrics != nil {
		cfg.Observe = a.metrics.ObserveFilter
	}
	return jwtware.New(cfg)
}

// HeaderGate returns the intra fleet header filter
func (a *RouteAuthenticator) HeaderGate() fiber.Handler {
	filter := a.cfg.Security.AppValidatorFilter
	return headergate.New(headergate.Config{
		Enabled:    filter.AppHeaderNameValidationFilter,
		HeaderName: filter.AppHeaderName,
		SelfName:   filter.AppSelfName,
		ErrorHandler: func(c *fiber.Ctx) error {
			return ErrInvalidAppHeader
		},
	})
}

// RequireAuthenticated rejects anonymous requests with a problem detail
func (a *RouteAuthenticator) RequireAuthenticated() fiber.Handler {
	return jwtware.RequireAuthenticated(a.guardConfig())
}

// RequireAuthority rejects requests whose token has none of codes
func (a *RouteAuthenticator) RequireAuthority(codes ...string) fiber.Handler {
	return jwtware.RequireAuthority(a.guardConfig(), codes...)
}

func (a *RouteAuthenticator) guardConfig() jwtware.GuardConfig {
	return jwtware.GuardConfig{
		ErrorHandler: func(c *fiber.Ctx, status int) error {
			if status == http.StatusForbidden {
				return ErrForbidden
			}
			return ErrUnauthorized
		},
	}
}

// Bearer returns the raw bearer token of the request, if any
func (a *RouteAuthenticator) Bearer(c *fiber.Ctx) string {
	token, err := jwtware.ExtractBearer(c, "Bearer")
	if err != nil {
		return ""
	}
	return token
}

// CurrentSessionID returns the session id presented in the session header
func (a *RouteAuthenticator) CurrentSessionID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderSessionID))
}

// Localizer resolves messages for the request language
func (a *RouteAuthenticator) Localizer(c *fiber.Ctx) *i18n.Localizer {
	return a.bundle.Localizer(c.Get(fiber.HeaderAcceptLanguage))
}

func (a *RouteAuthenticator) setCookieToken(c *fiber.Ctx, tokens *Tokens) error {
	val, err := tokens.CookieValue()
	if err != nil {
		return wrapInternal(err, "failed to encode auth cookie")
	}

	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    val,
		Path:     "/",
		Expires:  time.Now().Add(a.cookieDuration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
