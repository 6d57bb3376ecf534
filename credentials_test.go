package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-chassis-auth"
)

func newVerifier(t *testing.T, repo *MockUsers, now time.Time) (*auth.CredentialVerifier, string) {
	t.Helper()

	encoder := auth.NewDefaultPasswordEncoder(bcrypt.MinCost)
	hash, err := encoder.Encode("Password1!")
	require.NoError(t, err)

	clock := func() time.Time { return now }
	sm := auth.NewAccountStateMachine(repo, auth.WithStateMachineClock(clock))
	return auth.NewCredentialVerifier(repo, encoder, sm, auth.WithCredentialClock(clock)), hash
}

func TestCredentialVerifierVerify(t *testing.T) {
	ctx := context.Background()
	repo := &MockUsers{}
	verifier, hash := newVerifier(t, repo, time.Now())

	user := &auth.User{ID: uuid.New(), Username: "alice", Enabled: true, Password: hash}
	repo.On("GetByUsernameTx", ctx, nil, "alice").Return(user, nil)
	repo.On("GetByUsernameTx", ctx, nil, "ghost").Return(nil, auth.ErrUserNotFound.Clone("ghost"))

	got, err := verifier.Verify(ctx, nil, "alice", "Password1!")
	require.NoError(t, err)
	assert.Same(t, user, got)

	got, err = verifier.Verify(ctx, nil, "alice", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Same(t, user, got)

	got, err = verifier.Verify(ctx, nil, "ghost", "Password1!")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.Equal(t, 404, auth.HTTPStatus(err))
	assert.Nil(t, got)
}

func TestCredentialVerifierRegisterFailure(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		attempts     int
		wantAttempts int
		wantBanned   bool
	}{
		{name: "first failure", attempts: 0, wantAttempts: 1},
		{name: "below threshold", attempts: 8, wantAttempts: 9},
		{name: "reaches threshold", attempts: 9, wantAttempts: 10, wantBanned: true},
		{name: "counter never exceeds threshold", attempts: 10, wantAttempts: 10, wantBanned: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := &MockUsers{}
			verifier, _ := newVerifier(t, repo, now)

			user := &auth.User{ID: uuid.New(), Username: "alice", Enabled: true, LoginAttempts: tt.attempts}
			repo.On("TrackAttemptedLoginTx", ctx, nil, user).Return(nil).Once()

			require.NoError(t, verifier.RegisterFailure(ctx, nil, user))
			repo.AssertExpectations(t)

			assert.Equal(t, tt.wantAttempts, user.LoginAttempts)
			assert.Equal(t, tt.wantBanned, user.Banned)
			if tt.wantBanned {
				require.NotNil(t, user.BanDate)
				assert.Equal(t, now, *user.BanDate)
				assert.Equal(t, "max login attempts reached", user.BanReason)
			}
		})
	}
}

func TestCredentialVerifierCustomThreshold(t *testing.T) {
	ctx := context.Background()
	repo := &MockUsers{}
	encoder := auth.NewDefaultPasswordEncoder(bcrypt.MinCost)
	sm := auth.NewAccountStateMachine(repo)
	verifier := auth.NewCredentialVerifier(repo, encoder, sm, auth.WithMaxLoginAttempts(2))

	user := &auth.User{ID: uuid.New(), Username: "alice", Enabled: true, LoginAttempts: 1}
	repo.On("TrackAttemptedLoginTx", ctx, nil, user).Return(nil).Once()

	require.NoError(t, verifier.RegisterFailure(ctx, nil, user))
	assert.True(t, user.Banned)

	assert.True(t, verifier.NeedsUpgrade("$2a$04$legacy"))
	assert.False(t, verifier.NeedsUpgrade("{bcrypt}$2a$04$current"))
	repo.AssertCalled(t, "TrackAttemptedLoginTx", ctx, nil, user)
	repo.AssertNotCalled(t, "UpdateAccountTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestCredentialVerifierBansDisabledAccounts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &MockUsers{}
	verifier, _ := newVerifier(t, repo, now)

	user := &auth.User{ID: uuid.New(), Username: "alice", LoginAttempts: 9}
	require.Equal(t, auth.AccountStatusDisabled, user.Status())
	repo.On("TrackAttemptedLoginTx", ctx, nil, user).Return(nil).Once()

	require.NoError(t, verifier.RegisterFailure(ctx, nil, user))
	repo.AssertExpectations(t)

	assert.Equal(t, 10, user.LoginAttempts)
	assert.Equal(t, auth.AccountStatusBanned, user.Status())
	assert.False(t, user.Enabled)
}
