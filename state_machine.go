package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// AccountStatus is derived from the enabled, banned and verification
// token columns, it is never stored.
type AccountStatus string

const (
	AccountStatusPending  AccountStatus = "pending"
	AccountStatusActive   AccountStatus = "active"
	AccountStatusBanned   AccountStatus = "banned"
	AccountStatusDisabled AccountStatus = "disabled"
)

// Status derives the account status of u
func (u *User) Status() AccountStatus {
	switch {
	case u == nil:
		return ""
	case u.Banned:
		return AccountStatusBanned
	case u.Enabled:
		return AccountStatusActive
	case u.VerificationToken != nil:
		return AccountStatusPending
	default:
		return AccountStatusDisabled
	}
}

// CanLogin returns the error a login attempt gets for the account state
func (u *User) CanLogin() error {
	switch u.Status() {
	case AccountStatusActive:
		return nil
	case AccountStatusBanned:
		return NewUserBannedError(u.Username, formatViewDate(u.BanDate, time.UTC))
	default:
		return NewUserNotEnabledError(u.Username)
	}
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  AccountStatus
	To    AccountStatus
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine moves users between account states.
type AccountStateMachine interface {
	// Apply mutates user for the target state without persisting it
	Apply(ctx context.Context, actor ActorRef, user *User, target AccountStatus, opts ...TransitionOption) error
	// TransitionTx applies the target state and persists it within tx
	TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target AccountStatus, opts ...TransitionOption) (*User, error)
	CurrentStatus(user *User) AccountStatus
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the state is applied.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the state is persisted.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewAccountStateMachine returns the default implementation backed by the provided repository.
func NewAccountStateMachine(users Users, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		users: users,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusPending: {
				AccountStatusActive: {},
				AccountStatusBanned: {},
			},
			AccountStatusActive: {
				AccountStatusBanned:   {},
				AccountStatusDisabled: {},
			},
			AccountStatusBanned: {
				AccountStatusActive: {},
			},
			AccountStatusDisabled: {
				AccountStatusActive: {},
				AccountStatusBanned: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	users        Users
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          Clock
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (sm *accountStateMachine) CurrentStatus(user *User) AccountStatus {
	return user.Status()
}

func (sm *accountStateMachine) Apply(ctx context.Context, actor ActorRef, user *User, target AccountStatus, opts ...TransitionOption) error {
	_, _, err := sm.apply(ctx, actor, user, target, opts...)
	return err
}

func (sm *accountStateMachine) TransitionTx(ctx context.Context, tx bun.IDB, actor ActorRef, user *User, target AccountStatus, opts ...TransitionOption) (*User, error) {
	tc, options, err := sm.apply(ctx, actor, user, target, opts...)
	if err != nil {
		return nil, err
	}

	if err := sm.users.UpdateAccountTx(ctx, tx, user); err != nil {
		return nil, err
	}

	if err := runHooks(ctx, options.afterHooks, tc); err != nil {
		return nil, err
	}

	return user, nil
}

func (sm *accountStateMachine) apply(ctx context.Context, actor ActorRef, user *User, target AccountStatus, opts ...TransitionOption) (TransitionContext, *transitionOptions, error) {
	if user == nil || target == "" {
		return TransitionContext{}, nil, ErrInvalidTransition
	}

	from := user.Status()
	if from == target {
		if target == AccountStatusActive {
			return TransitionContext{}, nil, ErrAlreadyEnabled
		}
		return TransitionContext{}, nil, NewInvalidTransitionError(from, target)
	}

	if !sm.canTransition(from, target) {
		return TransitionContext{}, nil, NewInvalidTransitionError(from, target)
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.metadata,
	}

	if target == AccountStatusDisabled && actor.Type == ActorTypeUser &&
		PrincipalIndexKey(actor.ID) == PrincipalIndexKey(user.Username) {
		return tc, nil, ErrCannotDeactivateSelf
	}

	if err := runHooks(ctx, options.beforeHooks, tc); err != nil {
		return tc, nil, err
	}

	sm.applyFields(user, from, target, options.metadata.Reason)

	recordActivity(ctx, sm.activitySink, sm.logger, sm.now, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		Username:   user.Username,
		FromStatus: from,
		ToStatus:   user.Status(),
		Metadata:   transitionMetadata(options.metadata),
	})

	return tc, options, nil
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// applyFields sets the columns for the target state. Unbanning restores
// the state the account had before the ban, so an unverified account
// goes back to pending and a disabled one stays disabled.
func (sm *accountStateMachine) applyFields(user *User, from, target AccountStatus, reason string) {
	switch target {
	case AccountStatusActive:
		switch from {
		case AccountStatusPending:
			user.VerificationToken = nil
			user.Enabled = true
		case AccountStatusBanned:
			user.Banned = false
			user.BanDate = nil
			user.BanReason = ""
			user.LoginAttempts = 0
		case AccountStatusDisabled:
			user.Enabled = true
		}
	case AccountStatusBanned:
		now := sm.now()
		user.Banned = true
		user.BanDate = &now
		user.BanReason = reason
	case AccountStatusDisabled:
		user.Enabled = false
	}
}

func runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

func transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	out := make(map[string]any, len(meta.Metadata)+1)
	for k, v := range meta.Metadata {
		out[k] = v
	}
	if meta.Reason != "" {
		out["reason"] = meta.Reason
	}
	return out
}
