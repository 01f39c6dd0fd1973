package chat

import (
	"context"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litlink/internal/metrics"
	"litlink/internal/notification"
)

func newTestHub(t *testing.T) (*Hub, *MemoryStore, *notification.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	notifications := notification.NewMemoryStore()
	hub := NewHub(NewRegistry(), store, notifications, metrics.NewForTesting(), nil)
	return hub, store, notifications
}

// nextFrame pops one queued outbound frame and decodes it.
func nextFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case payload := <-c.send:
		var frame map[string]any
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame: %s", payload)
	default:
	}
}

func connect(h *Hub, c *Client) {
	h.registry.Register(c)
}

func TestRoutePingPong(t *testing.T) {
	hub, _, _ := newTestHub(t)
	c := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, c)

	hub.route(c, []byte(`{"type":"ping"}`))

	frame := nextFrame(t, c)
	assert.Equal(t, TypePong, frame["type"])
	assert.NotEmpty(t, frame["timestamp"])
}

func TestRouteMalformedPayloadKeepsConnection(t *testing.T) {
	hub, _, _ := newTestHub(t)
	c := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, c)

	hub.route(c, []byte(`{not json`))

	frame := nextFrame(t, c)
	assert.Equal(t, TypeError, frame["type"])
	assert.Equal(t, "malformed payload", frame["message"])

	// The connection still serves subsequent frames.
	hub.route(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, TypePong, nextFrame(t, c)["type"])
}

func TestRouteUnknownTypeIsIgnored(t *testing.T) {
	hub, _, _ := newTestHub(t)
	c := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, c)

	hub.route(c, []byte(`{"type":"chat:upload"}`))
	requireNoFrame(t, c)
}

func TestRouteChatMessageDeliversAndAcks(t *testing.T) {
	hub, _, _ := newTestHub(t)
	sender := newTestClient(uuid.New(), "alice", RoleUser)
	recipient := newTestClient(uuid.New(), "bob", RoleUser)
	connect(hub, sender)
	connect(hub, recipient)

	hub.route(sender, []byte(fmt.Sprintf(
		`{"type":"chat:message","recipientId":%q,"content":"hello bob"}`, recipient.UserID)))

	push := nextFrame(t, recipient)
	assert.Equal(t, TypeChatMessage, push["type"])
	assert.Equal(t, sender.UserID.String(), push["senderId"])
	assert.Equal(t, "alice", push["senderUsername"])
	msg, ok := push["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello bob", msg["content"])

	ack := nextFrame(t, sender)
	assert.Equal(t, TypeChatMessageSent, ack["type"])
	assert.NotEmpty(t, ack["messageId"])
	assert.Equal(t, push["conversationId"], ack["conversationId"])
}

func TestRouteChatMessageOfflineRecipientStillPersists(t *testing.T) {
	hub, store, _ := newTestHub(t)
	sender := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, sender)
	offline := uuid.New()

	hub.route(sender, []byte(fmt.Sprintf(
		`{"type":"chat:message","recipientId":%q,"content":"are you there"}`, offline)))

	ack := nextFrame(t, sender)
	require.Equal(t, TypeChatMessageSent, ack["type"])

	conv, err := store.FindByParticipants(context.Background(), sender.UserID, offline)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.Unread[offline])
	assert.Equal(t, "are you there", conv.LastMessagePreview)
}

func TestRouteChatMessageValidation(t *testing.T) {
	hub, _, _ := newTestHub(t)
	c := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, c)

	hub.route(c, []byte(`{"type":"chat:message","content":"no recipient"}`))
	assert.Equal(t, TypeError, nextFrame(t, c)["type"])

	hub.route(c, []byte(fmt.Sprintf(`{"type":"chat:message","recipientId":%q}`, uuid.New())))
	assert.Equal(t, TypeError, nextFrame(t, c)["type"])

	hub.route(c, []byte(fmt.Sprintf(
		`{"type":"chat:message","recipientId":%q,"content":"x","conversationId":"nope"}`, uuid.New())))
	frame := nextFrame(t, c)
	assert.Equal(t, TypeError, frame["type"])
	assert.Equal(t, "invalid conversationId", frame["message"])
}

func TestRouteChatMessageMismatchedRecipientNotPushed(t *testing.T) {
	hub, store, _ := newTestHub(t)
	sender := newTestClient(uuid.New(), "alice", RoleUser)
	participant := newTestClient(uuid.New(), "bob", RoleUser)
	bystander := newTestClient(uuid.New(), "carol", RoleUser)
	connect(hub, sender)
	connect(hub, participant)
	connect(hub, bystander)

	msg, err := store.SendMessage(context.Background(), SendRequest{
		SenderID: sender.UserID, RecipientID: participant.UserID, Content: "hello",
	})
	require.NoError(t, err)

	// An explicit conversation id with an unrelated recipientId must not
	// leak the message to that recipient.
	hub.route(sender, []byte(fmt.Sprintf(
		`{"type":"chat:message","recipientId":%q,"conversationId":%q,"content":"for your eyes only"}`,
		bystander.UserID, msg.ConversationID)))

	frame := nextFrame(t, sender)
	assert.Equal(t, TypeError, frame["type"])
	requireNoFrame(t, bystander)
	requireNoFrame(t, participant)

	conv, err := store.FindByParticipants(context.Background(), sender.UserID, participant.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.Unread[participant.UserID])
	assert.Equal(t, "hello", conv.LastMessagePreview)
}

func TestRouteTypingForwardedNotPersisted(t *testing.T) {
	hub, store, _ := newTestHub(t)
	sender := newTestClient(uuid.New(), "alice", RoleUser)
	recipient := newTestClient(uuid.New(), "bob", RoleUser)
	connect(hub, sender)
	connect(hub, recipient)

	hub.route(sender, []byte(fmt.Sprintf(
		`{"type":"chat:typing","recipientId":%q,"isTyping":true}`, recipient.UserID)))

	frame := nextFrame(t, recipient)
	assert.Equal(t, TypeChatTyping, frame["type"])
	assert.Equal(t, true, frame["isTyping"])
	assert.Equal(t, sender.UserID.String(), frame["senderId"])

	_, err := store.FindByParticipants(context.Background(), sender.UserID, recipient.UserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouteReadNotifiesOtherParticipant(t *testing.T) {
	hub, store, _ := newTestHub(t)
	sender := newTestClient(uuid.New(), "alice", RoleUser)
	reader := newTestClient(uuid.New(), "bob", RoleUser)
	connect(hub, sender)
	connect(hub, reader)

	msg, err := store.SendMessage(context.Background(), SendRequest{
		SenderID: sender.UserID, RecipientID: reader.UserID, Content: "hello",
	})
	require.NoError(t, err)

	hub.route(reader, []byte(fmt.Sprintf(
		`{"type":"chat:read","conversationId":%q}`, msg.ConversationID)))

	frame := nextFrame(t, sender)
	assert.Equal(t, TypeChatRead, frame["type"])
	assert.Equal(t, reader.UserID.String(), frame["readerId"])
	requireNoFrame(t, reader)
}

func TestRouteReadNonParticipantStaysSilent(t *testing.T) {
	hub, store, _ := newTestHub(t)
	alice, bob := uuid.New(), uuid.New()
	outsider := newTestClient(uuid.New(), "mallory", RoleUser)
	connect(hub, outsider)

	msg, err := store.SendMessage(context.Background(), SendRequest{
		SenderID: alice, RecipientID: bob, Content: "private",
	})
	require.NoError(t, err)

	hub.route(outsider, []byte(fmt.Sprintf(
		`{"type":"chat:read","conversationId":%q}`, msg.ConversationID)))

	// No error frame: the response must not reveal that the conversation
	// exists.
	requireNoFrame(t, outsider)
}

func TestRouteHistoryReturnsChronological(t *testing.T) {
	hub, store, _ := newTestHub(t)
	reader := newTestClient(uuid.New(), "bob", RoleUser)
	connect(hub, reader)
	alice := uuid.New()

	var convID uuid.UUID
	for _, content := range []string{"one", "two", "three"} {
		msg, err := store.SendMessage(context.Background(), SendRequest{
			SenderID: alice, RecipientID: reader.UserID, Content: content,
		})
		require.NoError(t, err)
		convID = msg.ConversationID
	}

	hub.route(reader, []byte(fmt.Sprintf(`{"type":"chat:history","conversationId":%q}`, convID)))

	frame := nextFrame(t, reader)
	require.Equal(t, TypeChatHistory, frame["type"])
	msgs, ok := frame["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	first := msgs[0].(map[string]any)
	last := msgs[2].(map[string]any)
	assert.Equal(t, "one", first["content"])
	assert.Equal(t, "three", last["content"])
}

func TestRouteOnlinePresence(t *testing.T) {
	hub, _, _ := newTestHub(t)
	asker := newTestClient(uuid.New(), "alice", RoleUser)
	online := newTestClient(uuid.New(), "bob", RoleUser)
	connect(hub, asker)
	connect(hub, online)
	offline := uuid.New()

	hub.route(asker, []byte(fmt.Sprintf(
		`{"type":"chat:online","userIds":[%q,%q,"garbage"]}`, online.UserID, offline)))

	frame := nextFrame(t, asker)
	require.Equal(t, TypeChatOnline, frame["type"])
	presence, ok := frame["presence"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, presence[online.UserID.String()])
	assert.Equal(t, false, presence[offline.String()])
	assert.Equal(t, false, presence["garbage"])
}

func TestRouteUnreadCountUsesRolePrefix(t *testing.T) {
	hub, _, notifications := newTestHub(t)
	admin := newTestClient(uuid.New(), "root", RoleAdmin)
	member := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, admin)
	connect(hub, member)

	ctx := context.Background()
	require.NoError(t, notifications.Insert(ctx, &notification.Notification{
		RecipientID: admin.UserID, Type: notification.TypeAdminNewUser,
	}))
	require.NoError(t, notifications.Insert(ctx, &notification.Notification{
		RecipientID: admin.UserID, Type: notification.TypeAdminNewReport,
	}))
	require.NoError(t, notifications.Insert(ctx, &notification.Notification{
		RecipientID: member.UserID, Type: notification.TypeUserBanned,
	}))

	hub.route(admin, []byte(`{"type":"get-unread-count"}`))
	frame := nextFrame(t, admin)
	require.Equal(t, TypeUnreadCount, frame["type"])
	assert.Equal(t, float64(2), frame["count"])

	hub.route(member, []byte(`{"type":"get-unread-count"}`))
	frame = nextFrame(t, member)
	require.Equal(t, TypeUnreadCount, frame["type"])
	assert.Equal(t, float64(1), frame["count"])
}

func TestSendToUserReportsLocalDelivery(t *testing.T) {
	hub, _, _ := newTestHub(t)
	c := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, c)

	assert.True(t, hub.SendToUser(c.UserID, []byte(`{"type":"notification"}`)))
	assert.False(t, hub.SendToUser(uuid.New(), []byte(`{"type":"notification"}`)))
}

func TestBroadcastToAdminsSkipsUsers(t *testing.T) {
	hub, _, _ := newTestHub(t)
	admin := newTestClient(uuid.New(), "root", RoleAdmin)
	member := newTestClient(uuid.New(), "alice", RoleUser)
	connect(hub, admin)
	connect(hub, member)

	delivered := hub.BroadcastToAdmins([]byte(`{"type":"notification"}`))
	assert.Equal(t, 1, delivered)
	assert.Equal(t, "notification", nextFrame(t, admin)["type"])
	requireNoFrame(t, member)
}
