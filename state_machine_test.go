package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-chassis-auth"
)

// MockUsers only implements what the state machine and the credential
// verifier call, anything else panics on the nil embedded interface.
type MockUsers struct {
	auth.Users
	mock.Mock
}

func (m *MockUsers) UpdateAccountTx(ctx context.Context, tx bun.IDB, user *auth.User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

func (m *MockUsers) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*auth.User, error) {
	args := m.Called(ctx, tx, username)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *auth.User) error {
	args := m.Called(ctx, tx, user)
	return args.Error(0)
}

func strPtr(s string) *string { return &s }

func pendingUser() *auth.User {
	return &auth.User{ID: uuid.New(), Username: "alice", VerificationToken: strPtr("tok")}
}

func activeUser() *auth.User {
	return &auth.User{ID: uuid.New(), Username: "alice", Enabled: true}
}

func bannedUser() *auth.User {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &auth.User{ID: uuid.New(), Username: "alice", Enabled: true, Banned: true, BanDate: &at, LoginAttempts: 10}
}

func disabledUser() *auth.User {
	return &auth.User{ID: uuid.New(), Username: "alice"}
}

func TestUserStatusIsDerived(t *testing.T) {
	tests := []struct {
		name string
		user *auth.User
		want auth.AccountStatus
	}{
		{"pending", pendingUser(), auth.AccountStatusPending},
		{"active", activeUser(), auth.AccountStatusActive},
		{"banned", bannedUser(), auth.AccountStatusBanned},
		{"disabled", disabledUser(), auth.AccountStatusDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.Status())
		})
	}
}

func TestCanLogin(t *testing.T) {
	assert.NoError(t, activeUser().CanLogin())

	err := bannedUser().CanLogin()
	require.Error(t, err)
	assert.Equal(t, auth.TextCodeUserBanned, auth.TextCode(err))
	assert.Equal(t, []any{"alice", "01/01/2024 00:00:00"}, auth.MessageArgs(err))

	err = pendingUser().CanLogin()
	assert.Equal(t, auth.TextCodeUserNotEnabled, auth.TextCode(err))

	err = disabledUser().CanLogin()
	assert.Equal(t, auth.TextCodeUserNotEnabled, auth.TextCode(err))
}

func TestStateMachineApply(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	admin := auth.UserActor("admin")

	tests := []struct {
		name    string
		user    func() *auth.User
		target  auth.AccountStatus
		wantErr error
		check   func(t *testing.T, u *auth.User)
	}{
		{
			name:   "pending to active clears the verification token",
			user:   pendingUser,
			target: auth.AccountStatusActive,
			check: func(t *testing.T, u *auth.User) {
				assert.True(t, u.Enabled)
				assert.Nil(t, u.VerificationToken)
			},
		},
		{
			name:   "active to banned stamps the ban date",
			user:   activeUser,
			target: auth.AccountStatusBanned,
			check: func(t *testing.T, u *auth.User) {
				assert.True(t, u.Banned)
				require.NotNil(t, u.BanDate)
				assert.Equal(t, now, *u.BanDate)
				assert.Equal(t, "abuse", u.BanReason)
			},
		},
		{
			name:   "banned to active resets the counter",
			user:   bannedUser,
			target: auth.AccountStatusActive,
			check: func(t *testing.T, u *auth.User) {
				assert.False(t, u.Banned)
				assert.Nil(t, u.BanDate)
				assert.Zero(t, u.LoginAttempts)
			},
		},
		{
			name:   "active to disabled",
			user:   activeUser,
			target: auth.AccountStatusDisabled,
			check: func(t *testing.T, u *auth.User) {
				assert.False(t, u.Enabled)
			},
		},
		{
			name:   "disabled to active",
			user:   disabledUser,
			target: auth.AccountStatusActive,
			check: func(t *testing.T, u *auth.User) {
				assert.True(t, u.Enabled)
			},
		},
		{
			name:    "active to active",
			user:    activeUser,
			target:  auth.AccountStatusActive,
			wantErr: auth.ErrAlreadyEnabled,
		},
		{
			name:    "pending to disabled",
			user:    pendingUser,
			target:  auth.AccountStatusDisabled,
			wantErr: auth.ErrInvalidTransition,
		},
		{
			name:    "banned to banned",
			user:    bannedUser,
			target:  auth.AccountStatusBanned,
			wantErr: auth.ErrInvalidTransition,
		},
		{
			name:   "disabled to banned keeps the account disabled underneath",
			user:   disabledUser,
			target: auth.AccountStatusBanned,
			check: func(t *testing.T, u *auth.User) {
				assert.True(t, u.Banned)
				assert.False(t, u.Enabled)
				require.NotNil(t, u.BanDate)
			},
		},
		{
			name:   "unbanning an unverified account returns it to pending",
			user:   func() *auth.User { u := bannedUser(); u.Enabled = false; u.VerificationToken = strPtr("tok"); return u },
			target: auth.AccountStatusActive,
			check: func(t *testing.T, u *auth.User) {
				assert.False(t, u.Banned)
				assert.False(t, u.Enabled)
				assert.NotNil(t, u.VerificationToken)
			},
		},
		{
			name:    "disabled to pending",
			user:    disabledUser,
			target:  auth.AccountStatusPending,
			wantErr: auth.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockUsers{}
			sm := auth.NewAccountStateMachine(repo, auth.WithStateMachineClock(func() time.Time { return now }))

			user := tt.user()
			err := sm.Apply(context.Background(), admin, user, tt.target, auth.WithTransitionReason("abuse"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, user)
		})
	}
}

func TestStateMachineInvalidTransitionCarriesStates(t *testing.T) {
	sm := auth.NewAccountStateMachine(&MockUsers{})

	err := sm.Apply(context.Background(), auth.SystemActor, pendingUser(), auth.AccountStatusDisabled)
	require.Error(t, err)
	assert.Equal(t, []any{auth.AccountStatusPending, auth.AccountStatusDisabled}, auth.MessageArgs(err))
}

func TestStateMachineRejectsSelfDisable(t *testing.T) {
	repo := &MockUsers{}
	sm := auth.NewAccountStateMachine(repo)

	user := activeUser()
	_, err := sm.TransitionTx(context.Background(), nil, auth.UserActor("ALICE"), user, auth.AccountStatusDisabled)
	assert.ErrorIs(t, err, auth.ErrCannotDeactivateSelf)
	assert.True(t, user.Enabled)
	repo.AssertNotCalled(t, "UpdateAccountTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestStateMachineTransitionTxPersists(t *testing.T) {
	repo := &MockUsers{}
	user := activeUser()
	repo.On("UpdateAccountTx", mock.Anything, mock.Anything, user).Return(nil).Once()

	var events []auth.ActivityEvent
	sink := auth.ActivitySinkFunc(func(_ context.Context, e auth.ActivityEvent) error {
		events = append(events, e)
		return nil
	})

	var after []auth.TransitionContext
	sm := auth.NewAccountStateMachine(repo, auth.WithStateMachineActivitySink(sink))

	result, err := sm.TransitionTx(context.Background(), nil, auth.UserActor("admin"), user, auth.AccountStatusBanned,
		auth.WithTransitionReason("spam"),
		auth.WithAfterTransitionHook(func(_ context.Context, tc auth.TransitionContext) error {
			after = append(after, tc)
			return nil
		}),
	)
	require.NoError(t, err)
	assert.Same(t, user, result)
	repo.AssertExpectations(t)

	require.Len(t, after, 1)
	assert.Equal(t, auth.AccountStatusActive, after[0].From)
	assert.Equal(t, auth.AccountStatusBanned, after[0].To)
	assert.Equal(t, "spam", after[0].Meta.Reason)

	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventUserStatusChanged, events[0].EventType)
	assert.Equal(t, "spam", events[0].Metadata["reason"])
}

func TestStateMachineBeforeHookAborts(t *testing.T) {
	repo := &MockUsers{}
	sm := auth.NewAccountStateMachine(repo)

	user := activeUser()
	_, err := sm.TransitionTx(context.Background(), nil, auth.SystemActor, user, auth.AccountStatusBanned,
		auth.WithBeforeTransitionHook(func(context.Context, auth.TransitionContext) error {
			return auth.ErrForbidden
		}),
	)
	assert.ErrorIs(t, err, auth.ErrForbidden)
	assert.False(t, user.Banned)
	repo.AssertNotCalled(t, "UpdateAccountTx", mock.Anything, mock.Anything, mock.Anything)
}
