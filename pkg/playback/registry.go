package playback

import (
	"context"
	"sync"
	"time"

	"chapterly/pkg/domain"
)

// Registry hands out one Session per listener key, so all surfaces a
// listener has open (mini player, full player, car mode) share a single
// source of truth. Each new session gets its own clock goroutine tied to
// the registry context.
type Registry struct {
	mu       sync.Mutex
	ctx      context.Context
	catalog  Catalog
	interval time.Duration
	onCreate func(key string, s *Session)
	sessions map[string]*Session
}

// NewRegistry builds a registry. onCreate, when non-nil, runs once per new
// session before it is returned; it is where observers get attached.
func NewRegistry(ctx context.Context, catalog Catalog, interval time.Duration, onCreate func(key string, s *Session)) *Registry {
	return &Registry{
		ctx:      ctx,
		catalog:  catalog,
		interval: interval,
		onCreate: onCreate,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for key, creating and starting it on first use.
// The identity kind of an existing session is refreshed so a guest who
// signs in keeps their session with the clamp lifted.
func (r *Registry) Get(key string, kind domain.IdentityKind) *Session {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if !ok {
		s = NewSession(r.catalog, kind)
		r.sessions[key] = s
	}
	r.mu.Unlock()
	if !ok {
		if r.onCreate != nil {
			r.onCreate(key, s)
		}
		go s.Run(r.ctx, r.interval)
		return s
	}
	s.SetIdentity(kind)
	return s
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
