package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/uptrace/bun"
)

// EnableUser re-enables a disabled account
func (a *Auther) EnableUser(ctx context.Context, actor, username string) (UserView, error) {
	return a.transition(ctx, actor, username, AccountStatusActive)
}

// DisableUser disables an account and drops its sessions. Users cannot
// disable themselves.
func (a *Auther) DisableUser(ctx context.Context, actor, username string) (UserView, error) {
	return a.transition(ctx, actor, username, AccountStatusDisabled)
}

// BanUser bans an account and drops its sessions
func (a *Auther) BanUser(ctx context.Context, actor, username, reason string) (UserView, error) {
	return a.transition(ctx, actor, username, AccountStatusBanned, WithTransitionReason(reason))
}

// UnbanUser lifts a ban and resets the attempts counter
func (a *Auther) UnbanUser(ctx context.Context, actor, username string) (UserView, error) {
	user, err := a.repo.Users().GetByUsername(ctx, username)
	if err != nil {
		return UserView{}, err
	}
	if user.Status() != AccountStatusBanned {
		return UserView{}, NewInvalidTransitionError(user.Status(), AccountStatusActive)
	}
	return a.transition(ctx, actor, username, AccountStatusActive, WithTransitionReason("unbanned"))
}

func (a *Auther) transition(ctx context.Context, actor, username string, target AccountStatus, opts ...TransitionOption) (UserView, error) {
	var user *User
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := a.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			return err
		}
		user, err = a.stateMachine.TransitionTx(ctx, tx, UserActor(actor), u, target, opts...)
		return err
	})
	if err != nil {
		return UserView{}, err
	}

	if status := user.Status(); status == AccountStatusBanned || status == AccountStatusDisabled {
		a.invalidatePrincipal(ctx, user.Username)
	}

	a.logger.Info("user %s moved to %s by %s", user.Username, user.Status(), actor)
	return NewUserView(user, a.location), nil
}

// AssignRoles replaces the roles of username. Live sessions are dropped
// since issued tokens carry the previous authorities.
func (a *Auther) AssignRoles(ctx context.Context, actor, username string, codes []string) (UserView, error) {
	codes = normalizeRoleCodes(codes)

	var user *User
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := a.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := a.repo.Users().AssignRolesTx(ctx, tx, u, codes...); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return UserView{}, err
	}

	a.invalidatePrincipal(ctx, user.Username)
	a.emit(ctx, ActivityEventUserRolesChanged, UserActor(actor), user, map[string]any{
		"roles": user.RoleCodes(),
	})

	a.logger.Info("roles of %s set to %v by %s", user.Username, user.RoleCodes(), actor)
	return NewUserView(user, a.location), nil
}

// DeleteUser removes an account and drops its sessions. Users cannot
// delete themselves.
func (a *Auther) DeleteUser(ctx context.Context, actor, username string) error {
	if PrincipalIndexKey(actor) == PrincipalIndexKey(username) {
		return ErrCannotDeactivateSelf
	}

	var user *User
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		u, err := a.repo.Users().GetByUsernameTx(ctx, tx, username)
		if err != nil {
			return err
		}
		if err := a.repo.Users().RemoveTx(ctx, tx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return err
	}

	a.invalidatePrincipal(ctx, user.Username)
	a.emit(ctx, ActivityEventUserDeleted, UserActor(actor), user, nil)

	a.logger.Info("user %s deleted by %s", user.Username, actor)
	return nil
}

func normalizeRoleCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || slices.Contains(out, code) {
			continue
		}
		out = append(out, code)
	}
	return out
}

// invalidatePrincipal drops every live session bound to username
func (a *Auther) invalidatePrincipal(ctx context.Context, username string) {
	live, err := a.sessions.FindByPrincipal(ctx, username)
	if err != nil {
		a.logger.Error("failed to list sessions of %s: %v", username, err)
		return
	}
	for id := range live {
		a.discardSession(ctx, id)
	}
}

// GetUser returns the view of a single user
func (a *Auther) GetUser(ctx context.Context, username string) (UserView, error) {
	user, err := a.repo.Users().GetByUsername(ctx, username)
	if err != nil {
		return UserView{}, err
	}
	return NewUserView(user, a.location), nil
}

// ListUsers pages through users ordered by username
func (a *Auther) ListUsers(ctx context.Context, limit, offset int) ([]UserView, int, error) {
	records, total, err := a.repo.Users().ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, 0, wrapInternal(err, "failed to list users")
	}

	views := make([]UserView, 0, len(records))
	for _, u := range records {
		views = append(views, NewUserView(u, a.location))
	}
	return views, total, nil
}

func (a *Auther) ListRoles(ctx context.Context) ([]RoleView, error) {
	roles, err := a.repo.Roles().ListRoles(ctx)
	if err != nil {
		return nil, wrapInternal(err, "failed to list roles")
	}

	views := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		views = append(views, NewRoleView(r))
	}
	return views, nil
}

func (a *Auther) GetRole(ctx context.Context, code string) (RoleView, error) {
	role, err := a.repo.Roles().GetByCode(ctx, code)
	if err != nil {
		return RoleView{}, err
	}
	return NewRoleView(role), nil
}
