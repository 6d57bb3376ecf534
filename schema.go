package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// CreateSchema creates the account tables when missing
func CreateSchema(ctx context.Context, db bun.IDB) error {
	models := []any{
		(*User)(nil),
		(*Role)(nil),
		(*Module)(nil),
		(*UserRoleLink)(nil),
		(*RoleModule)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create table")
		}
	}

	if _, err := db.NewCreateIndex().
		Model((*User)(nil)).
		Index("users_username_lower_idx").
		ColumnExpr("lower(username)").
		IfNotExists().
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create username index")
	}

	return nil
}

// DefaultRoles is the reference data every deployment starts with
func DefaultRoles() []*Role {
	users := NewModule("USR", "Users")
	roles := NewModule("ROL", "Roles")

	return []*Role{
		NewRole(RoleCodeUser, "User"),
		NewRole(RoleCodeAdmin, "Administrator", users, roles),
	}
}

// SeedRoles inserts the given roles and their modules idempotently
func SeedRoles(ctx context.Context, repo RepositoryManager, seed ...*Role) error {
	if len(seed) == 0 {
		seed = DefaultRoles()
	}

	return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, role := range seed {
			if err := repo.Roles().EnsureTx(ctx, tx, role); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to seed role").
					WithMetadata(map[string]any{"code": role.Code})
			}
		}
		return nil
	})
}
