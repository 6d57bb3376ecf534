package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-chassis-auth"
)

const (
	sessionKeyPrefix   = "session:"
	principalKeyPrefix = "session:principal:"

	maxWatchRetries = 3
)

// Hash fields of a stored session
const (
	fieldID             = "id"
	fieldPrincipalName  = "principal_name"
	fieldCreatedAt      = "created_at"
	fieldLastAccessedAt = "last_accessed_at"
	fieldMaxInactive    = "max_inactive"
	fieldAttributes     = "attributes"
)

// RedisSessionRegistry implements auth.SessionRegistry on redis. Each
// session is a hash under session:<id> whose TTL tracks the idle
// timeout, session:principal:<name> sets index them by principal.
type RedisSessionRegistry struct {
	client redis.UniversalClient
	opts   auth.RegistryOptions
}

var _ auth.SessionRegistry = (*RedisSessionRegistry)(nil)

func NewRedisSessionRegistry(client redis.UniversalClient, opts ...auth.RegistryOption) *RedisSessionRegistry {
	return &RedisSessionRegistry{client: client, opts: auth.NewRegistryOptions(opts...)}
}

// ConnectRedis initializes a client from a redis:// URL or host:port
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to ping redis")
	}
	return client, nil
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func principalKey(username string) string {
	return principalKeyPrefix + auth.PrincipalIndexKey(username)
}

// FindByID implements auth.SessionRegistry.
func (r *RedisSessionRegistry) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	session, err := r.load(ctx, id)
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

// FindByPrincipal implements auth.SessionRegistry. Index members whose
// hash already expired are pruned on the way.
func (r *RedisSessionRegistry) FindByPrincipal(ctx context.Context, username string) (map[string]*auth.Session, error) {
	key := principalKey(username)
	ids, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	now := r.opts.Now()
	out := make(map[string]*auth.Session, len(ids))
	var stale []any
	for _, id := range ids {
		session, err := r.load(ctx, id)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		if session.IsExpired(now) {
			continue
		}
		out[id] = session
	}

	if len(stale) > 0 {
		if err := r.client.SRem(ctx, key, stale...).Err(); err != nil {
			r.opts.Logger.Warn("failed to prune principal index %s: %v", key, err)
		}
	}
	return out, nil
}

// Create implements auth.SessionRegistry.
func (r *RedisSessionRegistry) Create(ctx context.Context, attributes map[string]any) (*auth.Session, error) {
	session, err := auth.NewSession(attributes, r.opts.Now(), r.opts.MaxInactive)
	if err != nil {
		return nil, err
	}

	fields, err := r.fields(session)
	if err != nil {
		return nil, err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(session.ID), fields)
		r.expire(ctx, pipe, session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Invalidate implements auth.SessionRegistry.
func (r *RedisSessionRegistry) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	principal, err := r.client.HGet(ctx, sessionKey(id), fieldPrincipalName).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		if principal != "" {
			pipe.SRem(ctx, principalKey(principal), id)
		}
		return nil
	})
	return err
}

// AttachPrincipal implements auth.SessionRegistry. The hash and both
// index sets change in one MULTI block guarded by a WATCH on the hash.
func (r *RedisSessionRegistry) AttachPrincipal(ctx context.Context, id, username string, snapshot auth.SecuritySnapshot) error {
	return r.update(ctx, id, func(pipe redis.Pipeliner, session *auth.Session) error {
		previous := session.PrincipalName
		session.Bind(username, snapshot)
		session.LastAccessedAt = r.opts.Now()

		fields, err := r.fields(session)
		if err != nil {
			return err
		}

		pipe.HSet(ctx, sessionKey(id), fields)
		r.expire(ctx, pipe, session)
		if previous != "" && auth.PrincipalIndexKey(previous) != auth.PrincipalIndexKey(username) {
			pipe.SRem(ctx, principalKey(previous), id)
		}
		pipe.SAdd(ctx, principalKey(username), id)
		return nil
	})
}

// Touch implements auth.SessionRegistry.
func (r *RedisSessionRegistry) Touch(ctx context.Context, id string) error {
	return r.update(ctx, id, func(pipe redis.Pipeliner, session *auth.Session) error {
		session.LastAccessedAt = r.opts.Now()
		pipe.HSet(ctx, sessionKey(id), fieldLastAccessedAt, session.LastAccessedAt.UnixNano())
		r.expire(ctx, pipe, session)
		return nil
	})
}

// update loads a live session under WATCH and queues fn's writes in a
// MULTI block. A concurrent change to the hash aborts the block and the
// read is retried, so an invalidated session is never written back.
func (r *RedisSessionRegistry) update(ctx context.Context, id string, fn func(pipe redis.Pipeliner, session *auth.Session) error) error {
	if id == "" {
		return auth.ErrSessionNotFound
	}

	key := sessionKey(id)
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			session, err := r.loadFrom(ctx, tx, id)
			if err != nil {
				return err
			}
			if session.IsExpired(r.opts.Now()) {
				return auth.ErrSessionNotFound
			}

			var queued error
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				queued = fn(pipe, session)
				return queued
			})
			if queued != nil {
				return queued
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return goerrors.New("session changed concurrently", goerrors.CategoryConflict).
		WithMetadata(map[string]any{"session": id, "attempts": maxWatchRetries})
}

// PurgeExpired implements auth.SessionRegistry. Redis drops idle hashes
// through their TTL, this sweeps the principal sets and removes sessions
// the registry clock already considers expired.
func (r *RedisSessionRegistry) PurgeExpired(ctx context.Context) (int, error) {
	now := r.opts.Now()
	purged := 0

	iter := r.client.Scan(ctx, 0, principalKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids, err := r.client.SMembers(ctx, key).Result()
		if err != nil {
			return purged, err
		}

		for _, id := range ids {
			session, err := r.load(ctx, id)
			switch {
			case errors.Is(err, auth.ErrSessionNotFound):
				if err := r.client.SRem(ctx, key, id).Err(); err != nil {
					return purged, err
				}
				purged++
			case err != nil:
				return purged, err
			case session.IsExpired(now):
				if err := r.Invalidate(ctx, id); err != nil {
					return purged, err
				}
				purged++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}
	return purged, nil
}

func (r *RedisSessionRegistry) expire(ctx context.Context, pipe redis.Pipeliner, session *auth.Session) {
	if session.MaxInactive > 0 {
		pipe.PExpire(ctx, sessionKey(session.ID), session.MaxInactive)
	}
}

func (r *RedisSessionRegistry) load(ctx context.Context, id string) (*auth.Session, error) {
	return r.loadFrom(ctx, r.client, id)
}

func (r *RedisSessionRegistry) loadFrom(ctx context.Context, c redis.Cmdable, id string) (*auth.Session, error) {
	if id == "" {
		return nil, auth.ErrSessionNotFound
	}

	values, err := c.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, auth.ErrSessionNotFound
	}

	attrs, err := auth.UnmarshalAttributes([]byte(values[fieldAttributes]))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode session attributes").
			WithMetadata(map[string]any{"session": id})
	}

	return &auth.Session{
		ID:             id,
		PrincipalName:  values[fieldPrincipalName],
		CreatedAt:      parseUnixNano(values[fieldCreatedAt]),
		LastAccessedAt: parseUnixNano(values[fieldLastAccessedAt]),
		MaxInactive:    time.Duration(parseInt(values[fieldMaxInactive])),
		Attributes:     attrs,
	}, nil
}

func (r *RedisSessionRegistry) fields(s *auth.Session) (map[string]any, error) {
	attrs, err := auth.MarshalAttributes(s.Attributes)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode session attributes").
			WithMetadata(map[string]any{"session": s.ID})
	}

	return map[string]any{
		fieldID:             s.ID,
		fieldPrincipalName:  s.PrincipalName,
		fieldCreatedAt:      s.CreatedAt.UnixNano(),
		fieldLastAccessedAt: s.LastAccessedAt.UnixNano(),
		fieldMaxInactive:    int64(s.MaxInactive),
		fieldAttributes:     string(attrs),
	}, nil
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func parseUnixNano(v string) time.Time {
	return time.Unix(0, parseInt(v))
}
