package presence

import (
	"sync"
	"time"
)

// Handle is the push side of a live connection.
type Handle interface {
	Push(event string, payload any) error
}

type Entry struct {
	Handle      Handle
	Route       string
	ConnectedAt time.Time
}

// Registry maps a user to their single active connection. A new
// registration replaces the previous handle.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry), now: time.Now}
}

// Register stores h for user and returns the handle it replaced, if any.
func (r *Registry) Register(userID string, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev Handle
	if e, ok := r.entries[userID]; ok {
		prev = e.Handle
	}
	r.entries[userID] = &Entry{Handle: h, ConnectedAt: r.now()}
	return prev
}

// Unregister removes the entry only while it still belongs to h, so a
// stale connection closing late cannot evict its replacement. A nil h
// removes unconditionally.
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return false
	}
	if h != nil && e.Handle != h {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.Handle, true
}

func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// Route returns the screen the user is currently on. Absent users have no route.
func (r *Registry) Route(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return "", false
	}
	return e.Route, true
}

// UpdateRoute returns the previous route and whether the user was present.
func (r *Registry) UpdateRoute(userID, route string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return "", false
	}
	prev := e.Route
	e.Route = route
	return prev, true
}

// Push delivers to the user's handle if present. A miss returns false.
func (r *Registry) Push(userID, event string, payload any) (bool, error) {
	h, ok := r.Lookup(userID)
	if !ok {
		return false, nil
	}
	return true, h.Push(event, payload)
}

// Broadcast pushes to every registered user except the one named.
// Push errors are ignored; dead handles are removed by their read loop.
func (r *Registry) Broadcast(except, event string, payload any) int {
	r.mu.RLock()
	targets := make([]Handle, 0, len(r.entries))
	for id, e := range r.entries {
		if id != except {
			targets = append(targets, e.Handle)
		}
	}
	r.mu.RUnlock()

	n := 0
	for _, h := range targets {
		if h.Push(event, payload) == nil {
			n++
		}
	}
	return n
}

func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
