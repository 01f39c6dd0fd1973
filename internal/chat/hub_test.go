package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litlink/internal/metrics"
	"litlink/internal/notification"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubRunLifecycle(t *testing.T) {
	hub := NewHub(NewRegistry(), NewMemoryStore(), notification.NewMemoryStore(), metrics.NewForTesting(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	userID := uuid.New()
	first := newTestClient(userID, "alice", RoleUser)
	second := newTestClient(userID, "alice", RoleUser)

	hub.register <- first
	waitFor(t, func() bool { return hub.registry.Get(userID) == first })

	// A second connection for the same user replaces the first, and the
	// first's send buffer is closed.
	hub.register <- second
	waitFor(t, func() bool { return hub.registry.Get(userID) == second })
	assert.False(t, first.enqueue([]byte("late")))
	assert.True(t, second.enqueue([]byte("ok")))

	// The evicted connection's unregister must not remove its replacement.
	hub.unregister <- first
	assert.Same(t, second, hub.registry.Get(userID))

	hub.unregister <- second
	waitFor(t, func() bool { return hub.registry.Get(userID) == nil })

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(NewRegistry(), NewMemoryStore(), notification.NewMemoryStore(), metrics.NewForTesting(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	c := newTestClient(uuid.New(), "alice", RoleUser)
	hub.register <- c
	waitFor(t, func() bool { return hub.registry.IsOnline(c.UserID) })

	cancel()
	<-done

	assert.False(t, hub.registry.IsOnline(c.UserID))
	assert.False(t, c.enqueue([]byte("late")))
}

func TestHubStoppedReleasesLifecycleSends(t *testing.T) {
	hub := NewHub(NewRegistry(), NewMemoryStore(), notification.NewMemoryStore(), metrics.NewForTesting(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	cancel()
	<-done

	// A disconnecting pump or an in-flight upgrade that lost the race with
	// shutdown must not block on the lifecycle channels forever.
	late := newTestClient(uuid.New(), "alice", RoleUser)
	finished := make(chan struct{})
	go func() {
		select {
		case hub.unregister <- late:
		case <-hub.done:
		}
		select {
		case hub.register <- late:
		case <-hub.done:
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle send blocked after hub stopped")
	}
}
