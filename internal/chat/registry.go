package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Role determines broadcast scope and which notification type prefix applies.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Registry tracks live connections keyed by user id, with a secondary index
// for admins. At most one connection is registered per user id: registering
// a second one evicts the first (close-then-replace). The registry owns no
// persistence.
//
// The hub goroutine drives registration; pushes come from HTTP handler
// goroutines, so reads and writes are guarded by a mutex.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]*Client
	admins map[uuid.UUID]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]*Client),
		admins: make(map[uuid.UUID]*Client),
	}
}

// Register stores the client, replacing any prior entry for the same user.
// The evicted client, if any, is returned so the caller can close its socket.
func (r *Registry) Register(c *Client) (evicted *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.byUser[c.UserID]; ok && prior != c {
		evicted = prior
	}
	r.byUser[c.UserID] = c
	if c.Role == RoleAdmin {
		r.admins[c.UserID] = c
	} else {
		// Role may have changed between connections of the same id.
		delete(r.admins, c.UserID)
	}
	return evicted
}

// Unregister removes the client from both indices. It is a no-op when the
// client is absent, or when the entry for its user id belongs to a newer
// connection (the client was evicted). Reports whether an entry was removed.
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.byUser[c.UserID]; !ok || current != c {
		return false
	}
	delete(r.byUser, c.UserID)
	delete(r.admins, c.UserID)
	return true
}

// Get returns the live connection for the user id, or nil.
func (r *Registry) Get(userID uuid.UUID) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// IsOnline reports whether the user currently has an open connection.
// Presence is exactly that, nothing richer.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	return r.Get(userID) != nil
}

// ListAdminIDs returns the ids of currently connected admins.
func (r *Registry) ListAdminIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.admins))
	for id := range r.admins {
		ids = append(ids, id)
	}
	return ids
}

// AdminClients returns the currently connected admin clients.
func (r *Registry) AdminClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.admins))
	for _, c := range r.admins {
		out = append(out, c)
	}
	return out
}

// CountAdmins returns the number of connected admins.
func (r *Registry) CountAdmins() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.admins)
}

// CountUsers returns the number of connected non-admin users.
func (r *Registry) CountUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser) - len(r.admins)
}

// all returns every registered client.
func (r *Registry) all() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}
