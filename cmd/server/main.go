package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	auth "github.com/goliatone/go-chassis-auth"
	"github.com/goliatone/go-chassis-auth/i18n"
	"github.com/goliatone/go-chassis-auth/repository"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHASSIS_CONFIG"), "path to the YAML config file")
	verifyURL := flag.String("verify-url", "http://localhost:4200/verify", "link sent in verification emails")
	flag.Parse()

	cfg, err := auth.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := run(cfg, *verifyURL); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func run(cfg auth.Config, verifyURL string) error {
	started := time.Now()
	logger := auth.NewSlogLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		return err
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if cfg.Database.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	repo := auth.NewRepositoryManager(db)
	if err := auth.CreateSchema(ctx, db); err != nil {
		return err
	}

	if err := auth.SeedRoles(ctx, repo); err != nil {
		return err
	}

	store, err := repository.NewSessionStore(ctx, cfg, db,
		auth.WithRegistryLogger(logger.GetLogger("sessions")),
	)
	if err != nil {
		return err
	}
	defer store.Close()

	bundle, err := i18n.New("es")
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := auth.NewMetrics(registry)
	if err != nil {
		return err
	}

	notifier, err := auth.NewTemplateNotifier(auth.LogMailer{Logger: logger.GetLogger("mailer")}, cfg.App.Name, verifyURL)
	if err != nil {
		return err
	}

	loc := cfg.Location()
	tokens := auth.NewTokenService(cfg.Security.JWT,
		auth.WithTokenLocation(loc),
		auth.WithTokenLogger(logger.GetLogger("tokens")),
	)

	auther := auth.NewAuther(repo, tokens, store, cfg.Security).
		WithLogger(logger.GetLogger("auth")).
		WithLocation(loc).
		WithNotifier(notifier).
		WithActivitySink(auth.MultiActivitySink{metrics})

	app := auth.NewApp(auth.AppOptions{
		Config:   cfg,
		Auther:   auther,
		Bundle:   bundle,
		Logger:   logger.GetLogger("http"),
		Metrics:  metrics,
		Gatherer: registry,
	})

	go auth.JanitorJob{
		Sessions: store,
		Interval: cfg.Security.Session.CleanupInterval,
		Observe:  metrics.ObservePurge,
		Logger:   logger.GetLogger("janitor"),
	}.Run(ctx)

	go auth.HeartbeatJob{
		DB:       db,
		Interval: cfg.Server.HeartbeatInterval,
		Started:  started,
		Logger:   logger.GetLogger("heartbeat"),
	}.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting %s %s on %s", cfg.App.Name, cfg.App.Version, cfg.Server.Address)
		errc <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
