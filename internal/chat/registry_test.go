package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(id uuid.UUID, username string, role Role) *Client {
	return &Client{
		UserID:   id,
		Username: username,
		Role:     role,
		send:     make(chan []byte, sendBufferSize),
	}
}

func TestRegistrySingleConnectionPerUser(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	first := newTestClient(userID, "alice", RoleUser)
	second := newTestClient(userID, "alice", RoleUser)

	require.Nil(t, r.Register(first))
	assert.Same(t, first, r.Get(userID))

	evicted := r.Register(second)
	require.Same(t, first, evicted)
	assert.Same(t, second, r.Get(userID))
	assert.Equal(t, 1, r.CountUsers())
}

func TestRegistryUnregisterIgnoresEvictedClient(t *testing.T) {
	r := NewRegistry()
	userID := uuid.New()

	first := newTestClient(userID, "alice", RoleUser)
	second := newTestClient(userID, "alice", RoleUser)

	r.Register(first)
	r.Register(second)

	// The evicted connection disconnects after its replacement registered.
	assert.False(t, r.Unregister(first))
	assert.Same(t, second, r.Get(userID))

	assert.True(t, r.Unregister(second))
	assert.Nil(t, r.Get(userID))
	assert.False(t, r.Unregister(second))
}

func TestRegistryAdminIndex(t *testing.T) {
	r := NewRegistry()

	admin := newTestClient(uuid.New(), "root", RoleAdmin)
	user := newTestClient(uuid.New(), "bob", RoleUser)
	r.Register(admin)
	r.Register(user)

	assert.Equal(t, 1, r.CountAdmins())
	assert.Equal(t, 1, r.CountUsers())
	require.Len(t, r.AdminClients(), 1)
	assert.Same(t, admin, r.AdminClients()[0])
	assert.Equal(t, []uuid.UUID{admin.UserID}, r.ListAdminIDs())

	// A reconnect with a demoted role drops the admin index entry.
	demoted := newTestClient(admin.UserID, "root", RoleUser)
	r.Register(demoted)
	assert.Equal(t, 0, r.CountAdmins())
	assert.Equal(t, 2, r.CountUsers())
}

func TestRegistryPresence(t *testing.T) {
	r := NewRegistry()
	c := newTestClient(uuid.New(), "alice", RoleUser)

	assert.False(t, r.IsOnline(c.UserID))
	r.Register(c)
	assert.True(t, r.IsOnline(c.UserID))
	r.Unregister(c)
	assert.False(t, r.IsOnline(c.UserID))
}

func TestClientEnqueueAfterShutdown(t *testing.T) {
	c := newTestClient(uuid.New(), "alice", RoleUser)

	assert.True(t, c.enqueue([]byte(`{"type":"pong"}`)))
	c.shutdown()
	assert.False(t, c.enqueue([]byte(`{"type":"pong"}`)))

	// Shutdown is idempotent.
	c.shutdown()
}

func TestClientEnqueueDropsOnFullBuffer(t *testing.T) {
	c := &Client{UserID: uuid.New(), send: make(chan []byte, 1)}

	assert.True(t, c.enqueue([]byte("a")))
	assert.False(t, c.enqueue([]byte("b")))
	assert.False(t, c.enqueue(nil))
}
