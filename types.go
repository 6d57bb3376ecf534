package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider hands out named loggers to components
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Clock returns the current time, injectable for tests
type Clock func() time.Time

// PasswordEncoder hashes and matches secrets
type PasswordEncoder interface {
	Encode(raw string) (string, error)
	Matches(raw, encoded string) error
}

// TokenService mints and verifies signed bearer tokens
type TokenService interface {
	Mint(subject string, roles, modules []string, sessionID string, refresh bool) (string, time.Time, error)
	Verify(token string) (*JWTClaims, error)
	ClaimFromExpired(token, name string) string
	IsRefresh(claims *JWTClaims) bool
	SessionIDFromToken(token string) (string, error)
}

// SessionRegistry keeps the live server side sessions indexed by
// session id and by principal name.
type SessionRegistry interface {
	FindByID(ctx context.Context, id string) (*Session, error)
	FindByPrincipal(ctx context.Context, username string) (map[string]*Session, error)
	Create(ctx context.Context, attributes map[string]any) (*Session, error)
	Invalidate(ctx context.Context, id string) error
	AttachPrincipal(ctx context.Context, id, username string, snapshot SecuritySnapshot) error
	Touch(ctx context.Context, id string) error
	PurgeExpired(ctx context.Context) (int, error)
}

// Notifier delivers verification tokens to new users
type Notifier interface {
	SendVerification(ctx context.Context, user *User, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
