package auth

import (
	"context"
	"sync"
)

// MemorySessionRegistry keeps both indexes in maps guarded by a single
// lock so the principal index always agrees with the primary one.
type MemorySessionRegistry struct {
	mu          sync.RWMutex
	byID        map[string]*Session
	byPrincipal map[string]map[string]struct{}
	opts        RegistryOptions
}

var _ SessionRegistry = (*MemorySessionRegistry)(nil)

func NewMemorySessionRegistry(opts ...RegistryOption) *MemorySessionRegistry {
	return &MemorySessionRegistry{
		byID:        map[string]*Session{},
		byPrincipal: map[string]map[string]struct{}{},
		opts:        NewRegistryOptions(opts...),
	}
}

func (r *MemorySessionRegistry) FindByID(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.byID[id]
	expired := ok && s.IsExpired(r.opts.Now())
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	if !expired {
		return s.Clone(), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// a Touch may have landed between the two locks
	s, ok = r.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !s.IsExpired(r.opts.Now()) {
		return s.Clone(), nil
	}

	r.removeLocked(id)
	return nil, ErrSessionNotFound
}

func (r *MemorySessionRegistry) FindByPrincipal(ctx context.Context, username string) (map[string]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.opts.Now()
	out := map[string]*Session{}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id := range r.byPrincipal[PrincipalIndexKey(username)] {
		s, ok := r.byID[id]
		if !ok || s.IsExpired(now) {
			continue
		}
		out[id] = s.Clone()
	}

	return out, nil
}

func (r *MemorySessionRegistry) Create(ctx context.Context, attributes map[string]any) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := NewSession(attributes, r.opts.Now(), r.opts.MaxInactive)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byID[s.ID] = s
	r.mu.Unlock()

	return s.Clone(), nil
}

func (r *MemorySessionRegistry) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	r.mu.Lock()
	r.removeLocked(id)
	r.mu.Unlock()

	return nil
}

func (r *MemorySessionRegistry) AttachPrincipal(ctx context.Context, id, username string, snapshot SecuritySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.IsExpired(r.opts.Now()) {
		return ErrSessionNotFound
	}

	if s.PrincipalName != "" {
		r.unindexLocked(s.PrincipalName, id)
	}

	s.Bind(username, snapshot)
	s.LastAccessedAt = r.opts.Now()

	key := PrincipalIndexKey(username)
	if r.byPrincipal[key] == nil {
		r.byPrincipal[key] = map[string]struct{}{}
	}
	r.byPrincipal[key][id] = struct{}{}

	return nil
}

func (r *MemorySessionRegistry) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.LastAccessedAt = r.opts.Now()
	return nil
}

func (r *MemorySessionRegistry) PurgeExpired(ctx context.Context) (int, error) {
	now := r.opts.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, s := range r.byID {
		if s.IsExpired(now) {
			r.removeLocked(id)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of stored sessions, expired ones included
func (r *MemorySessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemorySessionRegistry) removeLocked(id string) {
	s, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if s.PrincipalName != "" {
		r.unindexLocked(s.PrincipalName, id)
	}
}

func (r *MemorySessionRegistry) unindexLocked(username, id string) {
	key := PrincipalIndexKey(username)
	ids := r.byPrincipal[key]
	if ids == nil {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(r.byPrincipal, key)
	}
}
