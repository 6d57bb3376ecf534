package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error)
	ExistsUsernameTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	ExistsEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)

	RegisterTx(ctx context.Context, tx bun.IDB, user *User, roleCodes ...string) (*User, error)
	AssignRolesTx(ctx context.Context, tx bun.IDB, user *User, roleCodes ...string) error
	LoadRolesTx(ctx context.Context, tx bun.IDB, user *User) error

	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User, at time.Time) error
	UpdateAccountTx(ctx context.Context, tx bun.IDB, user *User) error
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, user *User) error
	RemoveTx(ctx context.Context, tx bun.IDB, user *User) error

	ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

// GetByUsernameTx matches usernames case insensitively and loads roles
func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.username) = ?", strings.ToLower(strings.TrimSpace(username))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound.Clone(username)
		}
		return nil, err
	}

	if err := a.LoadRolesTx(ctx, tx, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (a *users) GetByVerificationTokenTx(ctx context.Context, tx bun.IDB, token string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.verification_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrVerificationNotFound
		}
		return nil, err
	}
	return record, nil
}

func (a *users) ExistsUsernameTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("lower(?TableAlias.username) = ?", strings.ToLower(strings.TrimSpace(username))).
		Exists(ctx)
}

func (a *users) ExistsEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("lower(?TableAlias.email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Exists(ctx)
}

// RegisterTx inserts the user and links the given roles
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User, roleCodes ...string) (*User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = user
	}

	if err := a.AssignRolesTx(ctx, tx, created, roleCodes...); err != nil {
		return nil, err
	}

	return created, nil
}

// AssignRolesTx replaces the user's role links
func (a *users) AssignRolesTx(ctx context.Context, tx bun.IDB, user *User, roleCodes ...string) error {
	if _, err := tx.NewDelete().
		Model((*UserRoleLink)(nil)).
		Where("user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return err
	}

	if len(roleCodes) == 0 {
		user.Roles = nil
		return nil
	}

	roles := []*Role{}
	if err := tx.NewSelect().
		Model(&roles).
		Relation("Modules").
		Where("?TableAlias.code IN (?)", bun.In(roleCodes)).
		Scan(ctx); err != nil {
		return err
	}

	if len(roles) != len(roleCodes) {
		return ErrRoleNotFound.Clone(roleCodes)
	}

	links := make([]*UserRoleLink, 0, len(roles))
	for _, r := range roles {
		links = append(links, &UserRoleLink{UserID: user.ID, RoleID: r.ID})
	}

	if _, err := tx.NewInsert().Model(&links).Exec(ctx); err != nil {
		return err
	}

	user.Roles = roles
	return nil
}

func (a *users) LoadRolesTx(ctx context.Context, tx bun.IDB, user *User) error {
	roles := []*Role{}
	err := tx.NewSelect().
		Model(&roles).
		Relation("Modules").
		Join("JOIN user_roles AS ur ON ur.role_id = ?TableAlias.id").
		Where("ur.user_id = ?", user.ID).
		Order("role.code").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return err
	}

	user.Roles = roles
	return nil
}

// TrackAttemptedLoginTx persists the failure counter and ban state as
// computed by the credential verifier.
func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewUpdate().
		Model(user).
		Column("login_attempts", "banned", "ban_date", "ban_reason").
		WherePK().
		Exec(ctx)
	return err
}

// TrackSuccessfulLoginTx resets the failure counter and ban flags and
// records the login date.
func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User, at time.Time) error {
	user.LoginAttempts = 0
	user.Banned = false
	user.BanDate = nil
	user.LoginDate = &at

	_, err := tx.NewUpdate().
		Model(user).
		Column("login_attempts", "banned", "ban_date", "login_date").
		WherePK().
		Exec(ctx)
	return err
}

// UpdateAccountTx persists lifecycle fields after a state transition
func (a *users) UpdateAccountTx(ctx context.Context, tx bun.IDB, user *User) error {
	res, err := tx.NewUpdate().
		Model(user).
		Column("enabled", "banned", "ban_date", "ban_reason", "login_attempts", "verification_token").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": user.ID.String(),
			})
	}
	return nil
}

func (a *users) UpdatePasswordTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewUpdate().
		Model(user).
		Column("password").
		WherePK().
		Exec(ctx)
	return err
}

// RemoveTx deletes the user row together with its role links
func (a *users) RemoveTx(ctx context.Context, tx bun.IDB, user *User) error {
	if _, err := tx.NewDelete().
		Model((*UserRoleLink)(nil)).
		Where("user_id = ?", user.ID).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", user.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound.Clone(user.Username)
	}
	return nil
}

func (a *users) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	records := []*User{}
	q := a.db.NewSelect().
		Model(&records).
		Order("usr.username")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}

	for _, u := range records {
		if err := a.LoadRolesTx(ctx, a.db, u); err != nil {
			return nil, 0, err
		}
	}

	return records, total, nil
}
