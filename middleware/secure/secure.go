// Package secure bundles the browser facing protections: security
// headers and CORS.
package secure

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/goliatone/go-chassis-auth/middleware/jwtware"
)

// DefaultContentSecurityPolicy is sent in the standard and legacy CSP headers
const DefaultContentSecurityPolicy = "default-src 'self'"

// Legacy CSP header names still sent for older browsers
const (
	HeaderXContentSecurityPolicy = "X-Content-Security-Policy"
	HeaderXWebKitCSP             = "X-WebKit-CSP"
)

type HeadersConfig struct {
	// FrameOptions defaults to SAMEORIGIN
	FrameOptions          string
	ContentSecurityPolicy string
}

// Headers sets the frame and content security policy headers
func Headers(config ...HeadersConfig) fiber.Handler {
	var cfg HeadersConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.FrameOptions == "" {
		cfg.FrameOptions = "SAMEORIGIN"
	}

	if cfg.ContentSecurityPolicy == "" {
		cfg.ContentSecurityPolicy = DefaultContentSecurityPolicy
	}

	h := helmet.New(helmet.Config{
		XFrameOptions:         cfg.FrameOptions,
		ContentSecurityPolicy: cfg.ContentSecurityPolicy,
	})

	return func(c *fiber.Ctx) error {
		c.Set(HeaderXContentSecurityPolicy, cfg.ContentSecurityPolicy)
		c.Set(HeaderXWebKitCSP, cfg.ContentSecurityPolicy)
		return h(c)
	}
}

type CORSConfig struct {
	Enabled bool
	// Origins, Methods and Headers are lists
	Origins []string
	Methods []string
	Headers []string
	// PathPattern limits CORS handling, /** matches everything below
	PathPattern string
}

// CORS allows the configured origins with credentials. A disabled
// config is a pass through.
func CORS(cfg CORSConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	pattern := cfg.PathPattern
	if pattern == "" {
		pattern = "/**"
	}

	return cors.New(cors.Config{
		Next: func(c *fiber.Ctx) bool {
			return !jwtware.MatchPath(pattern, c.Path())
		},
		AllowOrigins:     strings.Join(cfg.Origins, ","),
		AllowMethods:     strings.Join(cfg.Methods, ","),
		AllowHeaders:     strings.Join(cfg.Headers, ","),
		AllowCredentials: true,
	})
}
