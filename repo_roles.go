package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Roles interface {
	repository.Repository[*Role]

	GetByCode(ctx context.Context, code string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	EnsureTx(ctx context.Context, tx bun.IDB, role *Role) error
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	return &roles{Repository: repo, db: db}
}

func (r *roles) GetByCode(ctx context.Context, code string) (*Role, error) {
	record := &Role{}
	err := r.db.NewSelect().
		Model(record).
		Relation("Modules").
		Where("?TableAlias.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrRoleNotFound.Clone(code)
		}
		return nil, err
	}
	return record, nil
}

func (r *roles) ListRoles(ctx context.Context) ([]*Role, error) {
	records := []*Role{}
	err := r.db.NewSelect().
		Model(&records).
		Relation("Modules").
		Order("role.code").
		Scan(ctx)
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, err
	}
	return records, nil
}

// EnsureTx inserts the role, its modules and their links when missing
func (r *roles) EnsureTx(ctx context.Context, tx bun.IDB, role *Role) error {
	if role.ID == uuid.Nil {
		role.ID = ReferenceID("role", role.Code)
	}

	if _, err := tx.NewInsert().
		Model(role).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return err
	}

	for _, m := range role.Modules {
		if m.ID == uuid.Nil {
			m.ID = ReferenceID("module", m.Code)
		}

		if _, err := tx.NewInsert().
			Model(m).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}

		link := &RoleModule{RoleID: role.ID, ModuleID: m.ID}
		if _, err := tx.NewInsert().
			Model(link).
			On("CONFLICT (role_id, module_id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
