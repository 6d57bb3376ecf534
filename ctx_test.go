package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-chassis-auth"
	"github.com/goliatone/go-chassis-auth/middleware/jwtware"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.False(t, auth.Can(ctx, "AD"))
	assert.False(t, auth.CanAccessModule(ctx, "USR"))

	ctx = jwtware.WithAuthentication(ctx, &auth.Authentication{
		Subject:     "alice",
		Authorities: []string{"US", "AD"},
		Modules:     []string{"USR"},
	})

	assert.True(t, auth.Can(ctx, "ad"))
	assert.False(t, auth.Can(ctx, "XX"))
	assert.True(t, auth.CanAccessModule(ctx, "USR"))
	assert.False(t, auth.CanAccessModule(ctx, "ROL"))

	got, ok := auth.GetAuthentication(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Subject)

	user := &auth.User{Username: "alice"}
	ctx = auth.WithContext(ctx, user)
	fromCtx, ok := auth.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, user, fromCtx)
}

func TestFilterAdapters(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	tokens := newTokenService(clock)
	registry := auth.NewMemorySessionRegistry(auth.WithRegistryClock(clock.Now))

	session, err := registry.Create(ctx, nil)
	require.NoError(t, err)

	validator := auth.FilterValidator(tokens)
	lookup := auth.FilterSessions(registry)

	token, _, err := tokens.Mint("alice", []string{"US"}, []string{"USR"}, session.ID, false)
	require.NoError(t, err)

	verified, err := validator.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", verified.Subject)
	assert.Equal(t, session.ID, verified.SessionID)
	assert.Equal(t, []string{"US"}, verified.Authorities)

	assert.ErrorIs(t, lookup.Lookup(ctx, session.ID), jwtware.ErrSessionNotFound, "anonymous sessions do not authenticate")

	require.NoError(t, registry.AttachPrincipal(ctx, session.ID, "alice", auth.SecuritySnapshot{Username: "alice"}))
	assert.NoError(t, lookup.Lookup(ctx, session.ID))
	assert.NoError(t, lookup.Touch(ctx, session.ID))

	require.NoError(t, registry.Invalidate(ctx, session.ID))
	assert.ErrorIs(t, lookup.Lookup(ctx, session.ID), jwtware.ErrSessionNotFound)
	assert.ErrorIs(t, lookup.Touch(ctx, session.ID), jwtware.ErrSessionNotFound)

	_, err = validator.Validate("garbage")
	require.Error(t, err)
	assert.NotErrorIs(t, err, jwtware.ErrTokenExpired)

	clock.Advance(16 * time.Minute)
	_, err = validator.Validate(token)
	assert.ErrorIs(t, err, jwtware.ErrTokenExpired)
}
