package auth

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chassis-auth/middleware/jwtware"
)

// Authentication is the per request security context published by the
// request auth filter.
type Authentication = jwtware.Authentication

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// GetAuthentication extracts the Authentication from the standard context
func GetAuthentication(ctx context.Context) (*Authentication, bool) {
	return jwtware.FromContext(ctx)
}

// Can reports whether the authenticated principal holds authority
func Can(ctx context.Context, authority string) bool {
	auth, ok := GetAuthentication(ctx)
	if !ok {
		return false
	}
	return auth.HasAuthority(authority)
}

// CanAccessModule reports whether the authenticated principal may use module
func CanAccessModule(ctx context.Context, module string) bool {
	auth, ok := GetAuthentication(ctx)
	if !ok {
		return false
	}
	return auth.HasModule(module)
}

// FilterValidator exposes the token service to the request auth filter
func FilterValidator(tokens TokenService) jwtware.TokenValidator {
	return tokenValidatorAdapter{tokens: tokens}
}

// FilterSessions exposes the session registry to the request auth filter
func FilterSessions(sessions SessionRegistry) jwtware.SessionLookup {
	return sessionLookupAdapter{sessions: sessions}
}

type tokenValidatorAdapter struct {
	tokens TokenService
}

func (a tokenValidatorAdapter) Validate(token string) (*jwtware.Verified, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		if goerrors.Is(err, ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", jwtware.ErrTokenExpired, err)
		}
		return nil, err
	}

	return &jwtware.Verified{
		Subject:     claims.Subject(),
		SessionID:   claims.SessionID,
		Authorities: claims.Authorities(),
		Modules:     claims.Modules,
	}, nil
}

type sessionLookupAdapter struct {
	sessions SessionRegistry
}

func (a sessionLookupAdapter) Lookup(ctx context.Context, id string) error {
	session, err := a.sessions.FindByID(ctx, id)
	if err != nil {
		return a.mapErr(err)
	}
	if session.IsAnonymous() {
		return jwtware.ErrSessionNotFound
	}
	return nil
}

func (a sessionLookupAdapter) Touch(ctx context.Context, id string) error {
	return a.mapErr(a.sessions.Touch(ctx, id))
}

func (a sessionLookupAdapter) mapErr(err error) error {
	if err != nil && goerrors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("%w: %w", jwtware.ErrSessionNotFound, err)
	}
	return err
}
