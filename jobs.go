package auth

import (
	"context"
	"time"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// JanitorJob purges expired sessions on an interval
type JanitorJob struct {
	Sessions SessionRegistry
	Interval time.Duration
	// Observe receives the number of sessions removed by each run
	Observe func(n int)
	Logger  Logger
}

// Run blocks until ctx is done
func (j JanitorJob) Run(ctx context.Context) {
	logger := j.Logger
	if logger == nil {
		logger = defLogger{}
	}

	runEvery(ctx, j.Interval, func(ctx context.Context) {
		n, err := j.Sessions.PurgeExpired(ctx)
		if err != nil {
			logger.Error("session janitor failed: %v", err)
			return
		}
		if j.Observe != nil {
			j.Observe(n)
		}
		if n > 0 {
			logger.Debug("session janitor purged %d sessions", n)
		}
	})
}

// HeartbeatJob logs uptime and database reachability on an interval
type HeartbeatJob struct {
	DB       Pinger
	Interval time.Duration
	Started  time.Time
	Now      Clock
	Logger   Logger
}

func (h HeartbeatJob) Run(ctx context.Context) {
	logger := h.Logger
	if logger == nil {
		logger = defLogger{}
	}

	now := h.Now
	if now == nil {
		now = time.Now
	}

	started := h.Started
	if started.IsZero() {
		started = now()
	}

	runEvery(ctx, h.Interval, func(ctx context.Context) {
		uptime := now().Sub(started).Round(time.Second)

		if h.DB == nil {
			logger.Info("server status: up %s", uptime)
			return
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := h.DB.PingContext(pingCtx); err != nil {
			logger.Error("server status: up %s, database unreachable: %v", uptime, err)
			return
		}
		logger.Info("server status: up %s, database ok", uptime)
	})
}

// runEvery calls fn every interval until ctx is done. A non positive
// interval disables the job.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
