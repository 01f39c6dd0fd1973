package chat

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"litlink/internal/logging"
	"litlink/internal/metrics"
)

// eventsChannel is the redis pub/sub channel bridging server instances.
const eventsChannel = "litlink:events"

// adminScope marks an envelope addressed to every connected admin instead of
// a single user.
const adminScope = "admins"

// NotificationCounter is the slice of the notification store the router
// needs for get-unread-count.
type NotificationCounter interface {
	CountUnread(ctx context.Context, recipientID uuid.UUID, typePrefix string) (int, error)
}

// envelope is the shape of a cross-instance event on the redis bus. Origin
// lets an instance skip its own publications; local delivery already
// happened before the publish.
type envelope struct {
	Origin  string          `json:"origin"`
	Scope   string          `json:"scope,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub owns the connection registry and routes events to live connections.
// One hub runs per server instance; it is constructed explicitly and passed
// to its collaborators, never a package-level singleton.
type Hub struct {
	registry      *Registry
	store         ConversationStore
	notifications NotificationCounter
	metrics       *metrics.Metrics
	rdb           *redis.Client
	instanceID    string

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub builds a hub. rdb may be nil, which disables the cross-instance
// bridge (single-instance deployments and tests).
func NewHub(registry *Registry, store ConversationStore, notifications NotificationCounter, m *metrics.Metrics, rdb *redis.Client) *Hub {
	return &Hub{
		registry:      registry,
		store:         store,
		notifications: notifications,
		metrics:       m,
		rdb:           rdb,
		instanceID:    uuid.NewString(),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
	}
}

// Run drives connection lifecycle events until the context is canceled, then
// closes every client. Inbound application frames are handled on the
// read-pump goroutines, not here, so a slow handler never delays
// registration. Closing done releases lifecycle sends racing with shutdown.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			if evicted := h.registry.Register(c); evicted != nil {
				// Close-then-replace: the prior connection for this user id
				// is shut down explicitly rather than left to leak.
				evicted.closeSocket(websocket.CloseNormalClosure, "superseded by a newer connection")
				evicted.shutdown()
				logging.Info().Str("user_id", c.UserID.String()).Msg("evicted prior connection")
			}
			h.updateGauges()
			logging.Info().
				Str("user_id", c.UserID.String()).
				Str("role", string(c.Role)).
				Int("admins", h.registry.CountAdmins()).
				Int("users", h.registry.CountUsers()).
				Msg("connection registered")

		case c := <-h.unregister:
			removed := h.registry.Unregister(c)
			c.shutdown()
			if removed {
				h.updateGauges()
				logging.Info().Str("user_id", c.UserID.String()).Msg("connection unregistered")
			}
		}
	}
}

func (h *Hub) closeAll() {
	for _, c := range h.registry.all() {
		h.registry.Unregister(c)
		c.closeSocket(websocket.CloseGoingAway, "server shutting down")
		c.shutdown()
	}
	h.updateGauges()
	logging.Info().Msg("closed all connections during shutdown")
}

func (h *Hub) updateGauges() {
	h.metrics.ConnectionsActive.WithLabelValues(string(RoleAdmin)).Set(float64(h.registry.CountAdmins()))
	h.metrics.ConnectionsActive.WithLabelValues(string(RoleUser)).Set(float64(h.registry.CountUsers()))
}

// SendToUser attempts best-effort delivery to the user's live connection and
// forwards the event across the redis bridge for peer instances. Reports
// whether a local connection accepted the event.
func (h *Hub) SendToUser(userID uuid.UUID, payload []byte) bool {
	delivered := false
	if c := h.registry.Get(userID); c != nil {
		if c.enqueue(payload) {
			delivered = true
			h.metrics.PushesDelivered.Inc()
		} else {
			h.metrics.PushesDropped.Inc()
			logging.Warn().Str("user_id", userID.String()).Msg("send buffer full, dropping event")
		}
	}
	h.publishRemote(envelope{UserID: userID.String(), Payload: payload})
	return delivered
}

// BroadcastToAdmins delivers the event to every connected admin, locally and
// across the bridge. Returns the local delivery count.
func (h *Hub) BroadcastToAdmins(payload []byte) int {
	delivered := 0
	for _, c := range h.registry.AdminClients() {
		if c.enqueue(payload) {
			delivered++
			h.metrics.PushesDelivered.Inc()
		} else {
			h.metrics.PushesDropped.Inc()
		}
	}
	h.publishRemote(envelope{Scope: adminScope, Payload: payload})
	return delivered
}

func (h *Hub) publishRemote(env envelope) {
	if h.rdb == nil {
		return
	}
	env.Origin = h.instanceID

	data, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Msg("encoding bus envelope failed")
		return
	}
	if err := h.rdb.Publish(context.Background(), eventsChannel, data).Err(); err != nil {
		// Best-effort: peers miss the event, durable state is the fallback.
		logging.Warn().Err(err).Msg("publishing bus envelope failed")
	}
}

// SubscribeEvents consumes the redis bridge and delivers peer-published
// events to local connections. Blocks until the context is canceled. No-op
// without a redis client.
func (h *Hub) SubscribeEvents(ctx context.Context) error {
	if h.rdb == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	pubsub := h.rdb.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h.deliverRemote([]byte(msg.Payload))
		}
	}
}

func (h *Hub) deliverRemote(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logging.Warn().Err(err).Msg("decoding bus envelope failed")
		return
	}
	if env.Origin == h.instanceID {
		return
	}

	if env.Scope == adminScope {
		for _, c := range h.registry.AdminClients() {
			if c.enqueue(env.Payload) {
				h.metrics.PushesDelivered.Inc()
			}
		}
		return
	}

	userID, err := uuid.Parse(env.UserID)
	if err != nil {
		return
	}
	if c := h.registry.Get(userID); c != nil {
		if c.enqueue(env.Payload) {
			h.metrics.PushesDelivered.Inc()
		}
	}
}
