package integration

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/linkroom/linkroom/internal/server"
	"github.com/linkroom/linkroom/test/testhelpers"
)

// TestWebSocketRejectsDisallowedOrigin verifies that the upgrade handshake
// fails for origins outside the configured allow list.
func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	conn, err := testhelpers.DialWebSocket(app.WebSocketURL(), "http://evil.example.com")
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected handshake to fail for disallowed origin")
	}
}

func TestWebSocketRejectsMissingOrigin(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	conn, err := testhelpers.DialWebSocket(app.WebSocketURL(), "")
	if err == nil {
		_ = conn.Close()
		t.Fatal("Expected handshake to fail without an Origin header")
	}
}

// TestWebSocketAllowsWildcardOrigin verifies that a configured "*" entry
// admits any origin.
func TestWebSocketAllowsWildcardOrigin(t *testing.T) {
	app := testhelpers.StartApp(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"*"}
	})

	conn, err := testhelpers.DialWebSocket(app.WebSocketURL(), "http://anywhere.example.com")
	if err != nil {
		t.Fatalf("Expected handshake to succeed with wildcard origin: %v", err)
	}
	_ = conn.Close()
}

// TestOversizedMessageClosesConnection verifies that a frame above the read
// limit terminates the connection and cleans up its memberships.
func TestOversizedMessageClosesConnection(t *testing.T) {
	app := testhelpers.StartApp(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 128
	})
	group := testhelpers.CreateGroup(t, app, "Team")

	alice := testhelpers.ConnectWebSocket(t, app)
	testhelpers.SendEvent(t, alice, server.EventJoinGroup, server.JoinGroupData{GroupID: group.ID, Username: "alice"})
	testhelpers.ExpectEvent(t, alice, server.EventUserJoined, nil)

	testhelpers.SendEvent(t, alice, server.EventSendMessage, server.SendMessageData{
		GroupID:  group.ID,
		Message:  strings.Repeat("x", 512),
		Username: "alice",
	})

	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return app.Groups.MemberCount(group.ID) == 0
	}, "Oversized message did not evict the connection from the group")
}

// TestSlowClientIsEvicted verifies that a connection that never drains its
// send buffer is dropped from the hub and swept out of its groups instead of
// stalling room broadcasts.
func TestSlowClientIsEvicted(t *testing.T) {
	app := testhelpers.StartApp(t, nil)
	group := testhelpers.CreateGroup(t, app, "Team")

	slow := testhelpers.ConnectWebSocket(t, app)
	testhelpers.SendEvent(t, slow, server.EventJoinGroup, server.JoinGroupData{GroupID: group.ID, Username: "slow"})
	testhelpers.ExpectEvent(t, slow, server.EventUserJoined, nil)

	// The slow client stops reading after joining. Large frames fill the
	// socket buffers, the write pump blocks, the send buffer fills, and the
	// next broadcast fails to enqueue and evicts the client.
	payload := bytes.Repeat([]byte("x"), 64*1024)
	deadline := time.Now().Add(5 * time.Second)
	for app.Hub.ClientCount() > 0 && time.Now().Before(deadline) {
		select {
		case app.Hub.GetBroadcastChan() <- server.RoomMessage{GroupID: group.ID, Payload: payload}:
		case <-time.After(100 * time.Millisecond):
		}
	}

	if count := app.Hub.ClientCount(); count != 0 {
		t.Fatalf("Expected slow client to be evicted from the hub, %d clients remain", count)
	}
	if count := app.Groups.MemberCount(group.ID); count != 0 {
		t.Errorf("Expected slow client to be removed from the group, %d members remain", count)
	}
}

// TestRateLimitDropsExcessEvents verifies the per-connection token bucket:
// with a burst of 2 and a long refill interval, only the first two messages
// of a burst are processed.
func TestRateLimitDropsExcessEvents(t *testing.T) {
	app := testhelpers.StartApp(t, func(cfg *server.Config) {
		cfg.RateLimit.Burst = 2
		cfg.RateLimit.RefillInterval = time.Minute
	})
	group := testhelpers.CreateGroup(t, app, "Team")

	// The observer is on a separate connection so its own reads are not rate
	// limited alongside the sender's.
	observer := testhelpers.ConnectWebSocket(t, app)
	testhelpers.SendEvent(t, observer, server.EventJoinGroup, server.JoinGroupData{GroupID: group.ID, Username: "observer"})
	testhelpers.ExpectEvent(t, observer, server.EventUserJoined, nil)

	sender := testhelpers.ConnectWebSocket(t, app)
	for i := 0; i < 5; i++ {
		testhelpers.SendEvent(t, sender, server.EventSendMessage, server.SendMessageData{
			GroupID:  group.ID,
			Message:  "burst",
			Username: "sender",
		})
	}

	received := 0
	for i := 0; i < 2; i++ {
		var message server.ChatMessage
		testhelpers.ExpectEvent(t, observer, server.EventNewMessage, &message)
		received++
	}
	testhelpers.ExpectNoEvent(t, observer, 500*time.Millisecond)

	if received != 2 {
		t.Errorf("Expected exactly 2 delivered messages, got %d", received)
	}
}
