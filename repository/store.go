package repository

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-chassis-auth"
)

// SessionStore is a session registry plus the resources it owns
type SessionStore struct {
	auth.SessionRegistry
	close func() error
}

// Close releases the store resources
func (s SessionStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewSessionStore builds the registry selected by security.session.store
func NewSessionStore(ctx context.Context, cfg auth.Config, db *bun.DB, opts ...auth.RegistryOption) (SessionStore, error) {
	opts = append([]auth.RegistryOption{
		auth.WithRegistryMaxInactive(cfg.Security.Session.MaxInactive),
	}, opts...)

	switch cfg.Security.Session.Store {
	case "", auth.SessionStoreMemory:
		return SessionStore{SessionRegistry: auth.NewMemorySessionRegistry(opts...)}, nil

	case auth.SessionStoreSQL:
		if db == nil {
			return SessionStore{}, goerrors.New("sql session store requires a database", goerrors.CategoryInternal)
		}
		registry := NewSQLSessionRegistry(db, opts...)
		if err := registry.CreateTable(ctx); err != nil {
			return SessionStore{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create sessions table")
		}
		return SessionStore{SessionRegistry: registry}, nil

	case auth.SessionStoreRedis:
		client, err := ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return SessionStore{}, err
		}
		return SessionStore{
			SessionRegistry: NewRedisSessionRegistry(client, opts...),
			close:           client.Close,
		}, nil

	default:
		return SessionStore{}, goerrors.New("unknown session store", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"store": cfg.Security.Session.Store})
	}
}
