package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CredentialVerifier checks username and password pairs and keeps the
// failed attempts counter.
type CredentialVerifier struct {
	users        Users
	encoder      PasswordEncoder
	stateMachine AccountStateMachine
	maxAttempts  int
	now          Clock
	logger       Logger
}

type CredentialOption func(*CredentialVerifier)

func WithCredentialClock(clock Clock) CredentialOption {
	return func(c *CredentialVerifier) {
		if clock != nil {
			c.now = clock
		}
	}
}

func WithCredentialLogger(logger Logger) CredentialOption {
	return func(c *CredentialVerifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxLoginAttempts overrides the ban threshold
func WithMaxLoginAttempts(n int) CredentialOption {
	return func(c *CredentialVerifier) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func NewCredentialVerifier(users Users, encoder PasswordEncoder, sm AccountStateMachine, opts ...CredentialOption) *CredentialVerifier {
	c := &CredentialVerifier{
		users:        users,
		encoder:      encoder,
		stateMachine: sm,
		maxAttempts:  MaxLoginAttempts,
		now:          time.Now,
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Verify loads the user and compares the presented password. Unknown
// usernames return ErrUserNotFound. A mismatch returns the user together
// with ErrInvalidCredentials so the caller can register the failure.
func (c *CredentialVerifier) Verify(ctx context.Context, tx bun.IDB, username, password string) (*User, error) {
	user, err := c.users.GetByUsernameTx(ctx, tx, username)
	if err != nil {
		return nil, err
	}

	if err := c.encoder.Matches(password, user.Password); err != nil {
		switch {
		case goerrors.Is(err, ErrUnsupportedPasswordAlg):
			c.logger.Error("stored password for %s uses an unknown encoder", user.Username)
			return user, err
		case goerrors.Is(err, ErrInvalidCredentials):
			return user, err
		}
		return user, ErrInvalidCredentials.withCause(err)
	}

	return user, nil
}

// RegisterFailure increments the attempts counter and bans the account
// once the threshold is reached. Callers persist it in their own
// transaction so the increment survives the failed login.
func (c *CredentialVerifier) RegisterFailure(ctx context.Context, tx bun.IDB, user *User) error {
	if user.LoginAttempts < c.maxAttempts {
		user.LoginAttempts++
	}

	if user.LoginAttempts >= c.maxAttempts && user.Status() != AccountStatusBanned {
		if err := c.stateMachine.Apply(ctx, SystemActor, user, AccountStatusBanned,
			WithTransitionReason("max login attempts reached"),
			WithTransitionMetadata(map[string]any{"attempts": user.LoginAttempts}),
		); err != nil {
			return err
		}
		c.logger.Warn("user %s banned after %d failed logins", user.Username, user.LoginAttempts)
	}

	return c.users.TrackAttemptedLoginTx(ctx, tx, user)
}

// NeedsUpgrade reports whether the stored hash should be re-encoded
func (c *CredentialVerifier) NeedsUpgrade(encoded string) bool {
	if d, ok := c.encoder.(*DelegatingPasswordEncoder); ok {
		return d.NeedsUpgrade(encoded)
	}
	return false
}
