package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-chassis-auth"
)

// SessionModel is the Bun model for server side sessions. Expiry is
// kept as unix nanoseconds so purges can filter in SQL, zero means the
// session never idles out.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions"`

	ID             string    `bun:"id,pk"`
	PrincipalName  string    `bun:"principal_name"`
	PrincipalKey   string    `bun:"principal_key"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
	LastAccessedAt time.Time `bun:"last_accessed_at,notnull"`
	MaxInactive    int64     `bun:"max_inactive,notnull"`
	ExpiresAt      int64     `bun:"expires_at,notnull"`
	Attributes     string    `bun:"attributes,notnull"`
}

// SQLSessionRegistry implements auth.SessionRegistry using Bun.
type SQLSessionRegistry struct {
	db   *bun.DB
	opts auth.RegistryOptions
}

var _ auth.SessionRegistry = (*SQLSessionRegistry)(nil)

// NewSQLSessionRegistry creates a new registry, call CreateTable before use.
func NewSQLSessionRegistry(db *bun.DB, opts ...auth.RegistryOption) *SQLSessionRegistry {
	return &SQLSessionRegistry{db: db, opts: auth.NewRegistryOptions(opts...)}
}

// CreateTable creates the sessions table and its principal index
func (r *SQLSessionRegistry) CreateTable(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().
		Model((*SessionModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := r.db.NewCreateIndex().
		Model((*SessionModel)(nil)).
		Index("sessions_principal_key_idx").
		Column("principal_key").
		IfNotExists().
		Exec(ctx)
	return err
}

// FindByID implements auth.SessionRegistry.
func (r *SQLSessionRegistry) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	model, err := r.get(ctx, r.db, id)
	if err != nil {
		return nil, err
	}

	session, err := r.toSession(model)
	if err != nil {
		return nil, err
	}

	if session.IsExpired(r.opts.Now()) {
		if err := r.Invalidate(ctx, id); err != nil {
			r.opts.Logger.Error("failed to drop expired session %s: %v", id, err)
		}
		return nil, auth.ErrSessionNotFound
	}

	return session, nil
}

// FindByPrincipal implements auth.SessionRegistry.
func (r *SQLSessionRegistry) FindByPrincipal(ctx context.Context, username string) (map[string]*auth.Session, error) {
	var models []SessionModel
	err := r.db.NewSelect().
		Model(&models).
		Where("principal_key = ?", auth.PrincipalIndexKey(username)).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := r.opts.Now()
	out := make(map[string]*auth.Session, len(models))
	for i := range models {
		session, err := r.toSession(&models[i])
		if err != nil {
			return nil, err
		}
		if session.IsExpired(now) {
			continue
		}
		out[session.ID] = session
	}
	return out, nil
}

// Create implements auth.SessionRegistry.
func (r *SQLSessionRegistry) Create(ctx context.Context, attributes map[string]any) (*auth.Session, error) {
	session, err := auth.NewSession(attributes, r.opts.Now(), r.opts.MaxInactive)
	if err != nil {
		return nil, err
	}

	model, err := r.fromSession(session)
	if err != nil {
		return nil, err
	}

	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// Invalidate implements auth.SessionRegistry.
func (r *SQLSessionRegistry) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := r.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// AttachPrincipal implements auth.SessionRegistry. Both the principal
// columns and the attributes change in one transaction.
func (r *SQLSessionRegistry) AttachPrincipal(ctx context.Context, id, username string, snapshot auth.SecuritySnapshot) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		model, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		session, err := r.toSession(model)
		if err != nil {
			return err
		}

		now := r.opts.Now()
		if session.IsExpired(now) {
			return auth.ErrSessionNotFound
		}

		session.Bind(username, snapshot)
		session.LastAccessedAt = now

		updated, err := r.fromSession(session)
		if err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model(updated).
			Column("principal_name", "principal_key", "attributes", "last_accessed_at", "expires_at").
			WherePK().
			Exec(ctx)
		return err
	})
}

// Touch implements auth.SessionRegistry.
func (r *SQLSessionRegistry) Touch(ctx context.Context, id string) error {
	now := r.opts.Now()
	res, err := r.db.NewUpdate().
		Model((*SessionModel)(nil)).
		Set("last_accessed_at = ?", now).
		Set("expires_at = CASE WHEN max_inactive > 0 THEN ? + max_inactive ELSE 0 END", now.UnixNano()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrSessionNotFound
	}
	return nil
}

// PurgeExpired implements auth.SessionRegistry.
func (r *SQLSessionRegistry) PurgeExpired(ctx context.Context) (int, error) {
	res, err := r.db.NewDelete().
		Model((*SessionModel)(nil)).
		Where("expires_at > 0 AND expires_at <= ?", r.opts.Now().UnixNano()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *SQLSessionRegistry) get(ctx context.Context, db bun.IDB, id string) (*SessionModel, error) {
	if id == "" {
		return nil, auth.ErrSessionNotFound
	}

	model := new(SessionModel)
	err := db.NewSelect().
		Model(model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, err
	}
	return model, nil
}

func (r *SQLSessionRegistry) toSession(m *SessionModel) (*auth.Session, error) {
	attrs, err := auth.UnmarshalAttributes([]byte(m.Attributes))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode session attributes").
			WithMetadata(map[string]any{"session": m.ID})
	}

	return &auth.Session{
		ID:             m.ID,
		PrincipalName:  m.PrincipalName,
		CreatedAt:      m.CreatedAt,
		LastAccessedAt: m.LastAccessedAt,
		MaxInactive:    time.Duration(m.MaxInactive),
		Attributes:     attrs,
	}, nil
}

func (r *SQLSessionRegistry) fromSession(s *auth.Session) (*SessionModel, error) {
	attrs, err := auth.MarshalAttributes(s.Attributes)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session attributes").
			WithMetadata(map[string]any{"session": s.ID})
	}

	var expiresAt int64
	if s.MaxInactive > 0 {
		expiresAt = s.ExpiresAt().UnixNano()
	}

	return &SessionModel{
		ID:             s.ID,
		PrincipalName:  s.PrincipalName,
		PrincipalKey:   auth.PrincipalIndexKey(s.PrincipalName),
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		MaxInactive:    int64(s.MaxInactive),
		ExpiresAt:      expiresAt,
		Attributes:     string(attrs),
	}, nil
}
