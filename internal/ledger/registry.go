package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/cache"
	"bilancio/internal/kv"
)

// Registry hands out one loaded Store per user. Sessions are kept in an LRU
// cache and dropped after ttl of inactivity; concurrent first requests for a
// user share a single Load. A session dropped while a request still holds it
// is harmless: every store of a user shares one lock and mutates the
// persisted list, never its own copy.
type Registry struct {
	kv       kv.Store
	opts     []Option
	sessions *cache.LRUCache[*Store]
	group    singleflight.Group
	locks    sync.Map // user -> *sync.Mutex
}

func NewRegistry(store kv.Store, size int, ttl time.Duration, opts ...Option) *Registry {
	return &Registry{
		kv:       store,
		opts:     opts,
		sessions: cache.NewLRUCache[*Store](size, ttl),
	}
}

// Session returns the loaded store of user.
func (r *Registry) Session(ctx context.Context, user string) (*Store, error) {
	if user == "" {
		return nil, ErrNoUser
	}
	if s, ok := r.sessions.Get(user); ok {
		r.sessions.Set(user, s)
		return s, nil
	}

	v, err, _ := r.group.Do(user, func() (any, error) {
		if s, ok := r.sessions.Get(user); ok {
			return s, nil
		}
		opts := append(slices.Clip(r.opts), withLock(r.lock(user)))
		s := New(user, r.kv, opts...)
		if _, err := s.Load(ctx); err != nil {
			return nil, err
		}
		r.sessions.Set(user, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

func (r *Registry) lock(user string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(user, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Evict forgets the session of user; the next Session call reloads it.
func (r *Registry) Evict(user string) {
	r.sessions.Delete(user)
}

// Sessions exposes the session cache for periodic cleanup.
func (r *Registry) Sessions() cache.Cleaner {
	return r.sessions
}

func (r *Registry) Active() int {
	return r.sessions.Size()
}
