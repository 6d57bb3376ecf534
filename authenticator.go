package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const verificationTokenBytes = 14

// Auther orchestrates registration, verification and the token and
// session lifecycle.
type Auther struct {
	repo            RepositoryManager
	tokens          TokenService
	sessions        SessionRegistry
	encoder         PasswordEncoder
	stateMachine    AccountStateMachine
	verifier        *CredentialVerifier
	notifier        Notifier
	activitySink    ActivitySink
	logger          Logger
	now             Clock
	location        *time.Location
	maxSessions     int
	enforceStrength bool
	phoneRegion     string
}

// NewAuther wires the orchestrator with the default bcrypt based
// delegating encoder and account state machine.
func NewAuther(repo RepositoryManager, tokens TokenService, sessions SessionRegistry, cfg SecurityConfig) *Auther {
	a := &Auther{
		repo:            repo,
		tokens:          tokens,
		sessions:        sessions,
		encoder:         NewDefaultPasswordEncoder(cfg.Password.BcryptCost),
		notifier:        noopNotifier{},
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
		now:             time.Now,
		location:        time.UTC,
		maxSessions:     cfg.Session.MaxSessions,
		enforceStrength: cfg.Password.EnforceStrength,
		phoneRegion:     DefaultPhoneRegion,
	}
	if a.maxSessions < 1 {
		a.maxSessions = 1
	}
	a.rebuild()
	return a
}

func (a *Auther) rebuild() {
	a.stateMachine = NewAccountStateMachine(a.repo.Users(),
		WithStateMachineClock(a.now),
		WithStateMachineActivitySink(a.activitySink),
		WithStateMachineLogger(a.logger),
	)
	a.verifier = NewCredentialVerifier(a.repo.Users(), a.encoder, a.stateMachine,
		WithCredentialClock(a.now),
		WithCredentialLogger(a.logger),
	)
}

func (a *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		a.logger = logger
		a.rebuild()
	}
	return a
}

// WithClock sets the clock used for account timestamps
func (a *Auther) WithClock(clock Clock) *Auther {
	if clock != nil {
		a.now = clock
		a.rebuild()
	}
	return a
}

// WithLocation sets the zone used to render user views
func (a *Auther) WithLocation(loc *time.Location) *Auther {
	if loc != nil {
		a.location = loc
	}
	return a
}

func (a *Auther) WithPasswordEncoder(encoder PasswordEncoder) *Auther {
	if encoder != nil {
		a.encoder = encoder
		a.rebuild()
	}
	return a
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (a *Auther) WithActivitySink(sink ActivitySink) *Auther {
	a.activitySink = normalizeActivitySink(sink)
	a.rebuild()
	return a
}

func (a *Auther) WithNotifier(notifier Notifier) *Auther {
	if notifier != nil {
		a.notifier = notifier
	}
	return a
}

// WithPhoneRegion sets the region assumed for numbers without prefix
func (a *Auther) WithPhoneRegion(region string) *Auther {
	if region != "" {
		a.phoneRegion = region
	}
	return a
}

// TokenService returns the TokenService instance used by this Auther
func (a *Auther) TokenService() TokenService {
	return a.tokens
}

// Sessions returns the session registry
func (a *Auther) Sessions() SessionRegistry {
	return a.sessions
}

// StateMachine returns the account state machine
func (a *Auther) StateMachine() AccountStateMachine {
	return a.stateMachine
}

// Location returns the zone used to render dates
func (a *Auther) Location() *time.Location {
	return a.location
}

// Register creates a pending user and returns its URL encoded
// verification token.
func (a *Auther) Register(ctx context.Context, req RegisterRequest) (string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := req.Validate(a.enforceStrength); err != nil {
		return "", err
	}

	phone, err := NormalizePhone(req.Phone, a.phoneRegion)
	if err != nil {
		return "", err
	}

	hash, err := a.encoder.Encode(req.Password)
	if err != nil {
		return "", wrapInternal(err, "failed to encode password")
	}

	token, err := NewVerificationToken()
	if err != nil {
		return "", err
	}

	user := &User{
		Username:          req.Username,
		Email:             req.Email,
		Name:              req.Name,
		Surname1:          req.Surname1,
		Surname2:          req.Surname2,
		Phone:             phone,
		Password:          hash,
		RegistrationDate:  a.now(),
		VerificationToken: &token,
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := a.repo.Users().ExistsUsernameTx(ctx, tx, user.Username)
		if err != nil {
			return err
		}
		if exists {
			return NewUserNameExistsError(user.Username)
		}

		if exists, err = a.repo.Users().ExistsEmailTx(ctx, tx, user.Email); err != nil {
			return err
		}
		if exists {
			return NewUserEmailExistsError(user.Email)
		}

		_, err = a.repo.Users().RegisterTx(ctx, tx, user, RoleCodeUser)
		return err
	})
	if err != nil {
		return "", wrapInternal(err, "failed to register user")
	}

	a.logger.Info("user %s registered", user.Username)
	a.emit(ctx, ActivityEventUserRegistered, UserActor(user.Username), user, nil)

	if err := a.notifier.SendVerification(ctx, user, token); err != nil {
		a.logger.Error("failed to send verification to %s: %v", user.Email, err)
	}

	return url.QueryEscape(token), nil
}

// Verify consumes a verification token and activates the account
func (a *Auther) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if unescaped, err := url.QueryUnescape(token); err == nil {
		token = unescaped
	}
	if token == "" {
		return ErrVerificationNotFound
	}

	return a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := a.repo.Users().GetByVerificationTokenTx(ctx, tx, token)
		if err != nil {
			return err
		}

		switch status := user.Status(); status {
		case AccountStatusActive:
			return ErrAlreadyEnabled
		case AccountStatusBanned:
			return user.CanLogin()
		case AccountStatusPending:
		default:
			return NewInvalidTransitionError(status, AccountStatusActive)
		}

		_, err = a.stateMachine.TransitionTx(ctx, tx, UserActor(user.Username), user, AccountStatusActive,
			WithTransitionReason("email verified"),
		)
		return err
	})
}

// Login authenticates the user, replaces the caller's current session
// with a fresh one bound to the user and issues a token pair.
func (a *Auther) Login(ctx context.Context, req LoginRequest) (*Tokens, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	current, err := a.currentSession(ctx, req.BearerToken, req.CurrentSessionID)
	if err != nil {
		return nil, err
	}

	if current == nil || current.IsAnonymous() {
		live, err := a.sessions.FindByPrincipal(ctx, req.Username)
		if err != nil {
			return nil, wrapInternal(err, "failed to count user sessions")
		}

		if len(live) >= a.maxSessions {
			if current != nil {
				a.discardSession(ctx, current.ID)
			}
			a.emit(ctx, ActivityEventSessionLimitReached, UserActor(req.Username), nil, map[string]any{
				"username": req.Username,
				"sessions": len(live),
			})
			return nil, NewMaxSessionsError(req.Username, a.maxSessions)
		}
	}

	if current != nil {
		a.discardSession(ctx, current.ID)
	}

	session, err := a.sessions.Create(ctx, nil)
	if err != nil {
		return nil, wrapInternal(err, "failed to create session")
	}

	tokens, err := a.authenticate(ctx, session, req)
	if err != nil {
		a.discardSession(ctx, session.ID)
		return nil, err
	}

	return tokens, nil
}

func (a *Auther) authenticate(ctx context.Context, session *Session, req LoginRequest) (*Tokens, error) {
	user, err := a.verifier.Verify(ctx, a.repo.DB(), req.Username, req.Password)
	if err != nil {
		if user != nil && goerrors.Is(err, ErrInvalidCredentials) {
			if ferr := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
				return a.verifier.RegisterFailure(ctx, tx, user)
			}); ferr != nil {
				a.logger.Error("failed to register login failure for %s: %v", user.Username, ferr)
			}
		}
		a.emit(ctx, ActivityEventLoginFailure, UserActor(req.Username), user, map[string]any{
			"error": TextCode(err),
		})
		return nil, err
	}

	if err := user.CanLogin(); err != nil {
		a.emit(ctx, ActivityEventLoginFailure, UserActor(user.Username), user, map[string]any{
			"error":  TextCode(err),
			"status": user.Status(),
		})
		return nil, err
	}

	tokens, err := a.issue(ctx, session, user)
	if err != nil {
		return nil, err
	}

	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return a.repo.Users().TrackSuccessfulLoginTx(ctx, tx, user, a.now())
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to track login")
	}
	tokens.User = NewUserView(user, a.location)

	a.emit(ctx, ActivityEventLoginSuccess, UserActor(user.Username), user, map[string]any{
		"session": session.ID,
	})

	return tokens, nil
}

// Refresh rotates the session behind a refresh token and issues a new
// token pair. A refresh token can only be used once.
func (a *Auther) Refresh(ctx context.Context, bearer string) (*Tokens, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, ErrTokenMissing
	}

	claims, err := a.tokens.Verify(bearer)
	if err != nil {
		return nil, err
	}

	if !a.tokens.IsRefresh(claims) {
		return nil, ErrTokenInvalid
	}

	old, err := a.sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if goerrors.Is(err, ErrSessionNotFound) {
			return nil, ErrTokenInvalid.withCause(err)
		}
		return nil, wrapInternal(err, "failed to load session")
	}

	user, err := a.repo.Users().GetByUsername(ctx, claims.Subject())
	if err != nil {
		return nil, err
	}

	if err := user.CanLogin(); err != nil {
		a.discardSession(ctx, old.ID)
		return nil, err
	}

	a.discardSession(ctx, old.ID)

	session, err := a.sessions.Create(ctx, nil)
	if err != nil {
		return nil, wrapInternal(err, "failed to create session")
	}

	tokens, err := a.issue(ctx, session, user)
	if err != nil {
		a.discardSession(ctx, session.ID)
		return nil, err
	}
	tokens.User = NewUserView(user, a.location)

	a.emit(ctx, ActivityEventTokenRefreshed, UserActor(user.Username), user, map[string]any{
		"from": old.ID,
		"to":   session.ID,
	})

	return tokens, nil
}

// Logout invalidates the session referenced by the bearer token or, if
// there is none, the session id presented by the client.
func (a *Auther) Logout(ctx context.Context, bearer, currentSessionID string) error {
	id := a.currentSessionID(bearer, currentSessionID)
	if id == "" {
		return nil
	}

	if err := a.sessions.Invalidate(ctx, id); err != nil {
		return wrapInternal(err, "failed to invalidate session")
	}

	a.emit(ctx, ActivityEventLogout, ActorRef{ID: id, Type: "session"}, nil, nil)
	return nil
}

// Check decodes the token bundle cached in the client cookie. No server
// state is consulted.
func (a *Auther) Check(cookie string) (*Tokens, error) {
	return DecodeTokensCookie(cookie)
}

// issue mints the token pair for session and binds user to it
func (a *Auther) issue(ctx context.Context, session *Session, user *User) (*Tokens, error) {
	roles := user.RoleCodes()
	modules := user.ModuleCodes()

	access, accessExp, err := a.tokens.Mint(user.Username, roles, modules, session.ID, false)
	if err != nil {
		return nil, wrapInternal(err, "failed to mint access token")
	}

	refresh, refreshExp, err := a.tokens.Mint(user.Username, roles, modules, session.ID, true)
	if err != nil {
		return nil, wrapInternal(err, "failed to mint refresh token")
	}

	snapshot := SecuritySnapshot{
		Username:        user.Username,
		Authorities:     roles,
		Modules:         modules,
		AuthenticatedAt: a.now(),
	}

	if err := a.sessions.AttachPrincipal(ctx, session.ID, user.Username, snapshot); err != nil {
		return nil, wrapInternal(err, "failed to bind session")
	}

	return &Tokens{
		JWT:             access,
		RefreshToken:    refresh,
		ExpireAt:        accessExp,
		ExpireRefreshAt: refreshExp,
		SessionID:       session.ID,
	}, nil
}

func (a *Auther) currentSessionID(bearer, fallback string) string {
	if bearer = strings.TrimSpace(bearer); bearer != "" {
		if id, err := a.tokens.SessionIDFromToken(bearer); err == nil && id != "" {
			return id
		}
	}
	return strings.TrimSpace(fallback)
}

func (a *Auther) currentSession(ctx context.Context, bearer, fallback string) (*Session, error) {
	id := a.currentSessionID(bearer, fallback)
	if id == "" {
		return nil, nil
	}

	session, err := a.sessions.FindByID(ctx, id)
	if err != nil {
		if goerrors.Is(err, ErrSessionNotFound) {
			return nil, nil
		}
		return nil, wrapInternal(err, "failed to load session")
	}
	return session, nil
}

// discardSession runs on cleanup paths, so it must not depend on the
// request context still being alive.
func (a *Auther) discardSession(ctx context.Context, id string) {
	if err := a.sessions.Invalidate(context.WithoutCancel(ctx), id); err != nil {
		a.logger.Error("failed to invalidate session %s: %v", id, err)
	}
}

func (a *Auther) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, user *User, metadata map[string]any) {
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		Metadata:  metadata,
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.Username = user.Username
		event.ToStatus = user.Status()
	}
	recordActivity(ctx, a.activitySink, a.logger, a.now, event)
}

// NewVerificationToken returns 14 random bytes as unpadded base64url
func NewVerificationToken() (string, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", wrapInternal(err, "failed to generate verification token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
