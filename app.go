package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-chassis-auth/i18n"
	"github.com/goliatone/go-chassis-auth/middleware/csrf"
	"github.com/goliatone/go-chassis-auth/middleware/secure"
)

// AppOptions are the collaborators of the HTTP application
type AppOptions struct {
	Config  Config
	Auther  *Auther
	Bundle  *i18n.Bundle
	Logger  Logger
	Metrics *Metrics
	// Gatherer backs /metrics, the endpoint is not mounted when nil
	Gatherer prometheus.Gatherer
}

// NewApp builds the fiber application: security headers, CORS and CSRF
// first, then the request auth filter followed by the header gate in
// front of every route except /metrics.
func NewApp(opts AppOptions) *fiber.App {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = defLogger{}
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          NewErrorHandler(opts.Bundle, logger),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(secure.Headers())
	app.Use(secure.CORS(secure.CORSConfig{
		Enabled:     cfg.Security.CORS.Enabled,
		Origins:     SplitList(cfg.Security.CORS.Allowed.Origins),
		Methods:     SplitList(cfg.Security.CORS.Allowed.Methods),
		Headers:     SplitList(cfg.Security.CORS.Allowed.Headers),
		PathPattern: cfg.Security.CORS.Path.Pattern,
	}))
	app.Use(csrf.New(csrf.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Debug("csrf check failed for %s: %v", c.Path(), err)
			return ErrForbidden
		},
	}))

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	ra := NewHTTPAuthenticator(opts.Auther, cfg, opts.Bundle).
		WithLogger(logger)
	if opts.Metrics != nil {
		ra.WithMetrics(opts.Metrics)
	}

	app.Use(ra.ProtectedRoute())
	app.Use(ra.HeaderGate())

	api := app.Group(cfg.Server.Prefix)

	RegisterAuthRoutes(api,
		WithControllerAuther(opts.Auther),
		WithRouteAuthenticator(ra),
		WithControllerLogger(logger),
		WithAppInfo(cfg.App),
		WithAdminAuthority(cfg.Security.AdminAuthority),
	)

	app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	return app
}
