package integration

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/linkroom/linkroom/internal/server"
	"github.com/linkroom/linkroom/test/testhelpers"
)

// TestHubShutdownWithoutClients verifies that an idle hub shuts down cleanly.
func TestHubShutdownWithoutClients(t *testing.T) {
	groups := server.NewGroupRegistry(zerolog.Nop())
	hub := server.NewHub(groups, zerolog.Nop())
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	if err := hub.Shutdown(time.Second); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}

// TestHubShutdownClosesClients verifies that graceful shutdown closes live
// WebSocket connections and returns before the timeout.
func TestHubShutdownClosesClients(t *testing.T) {
	app := testhelpers.StartApp(t, nil)
	group := testhelpers.CreateGroup(t, app, "Team")

	alice := testhelpers.ConnectWebSocket(t, app)
	testhelpers.SendEvent(t, alice, server.EventJoinGroup, server.JoinGroupData{GroupID: group.ID, Username: "alice"})
	testhelpers.ExpectEvent(t, alice, server.EventUserJoined, nil)

	done := make(chan error, 1)
	go func() {
		done <- app.Hub.Shutdown(5 * time.Second)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Hub shutdown did not return")
	}

	// The client observes the closed connection.
	if err := alice.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := alice.ReadMessage(); err == nil {
		t.Error("Expected read to fail after shutdown")
	}
}

// TestUpgradeAfterHubShutdown verifies that a WebSocket upgrade arriving after
// the hub has stopped does not hang the handler; the connection is closed
// instead of waiting on a register channel nobody drains.
func TestUpgradeAfterHubShutdown(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	if err := app.Hub.Shutdown(time.Second); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := testhelpers.DialWebSocket(app.WebSocketURL(), app.Server.URL)
		if err != nil {
			return
		}
		// The upgrade itself can succeed before the server closes the
		// connection; the read must then fail promptly.
		defer func() { _ = conn.Close() }()
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Errorf("Failed to set read deadline: %v", err)
			return
		}
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Error("Expected read to fail on a connection upgraded after shutdown")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WebSocket upgrade after shutdown did not complete")
	}
}

// TestShutdownAfterClientsDisconnected verifies that the hub shuts down
// cleanly once all clients have unregistered on their own.
func TestShutdownAfterClientsDisconnected(t *testing.T) {
	app := testhelpers.StartApp(t, nil)

	alice := testhelpers.ConnectWebSocket(t, app)
	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return app.Hub.ClientCount() == 1
	}, "Client was not registered")

	if err := testhelpers.CloseWebSocket(alice); err != nil {
		t.Fatalf("Failed to close connection: %v", err)
	}
	testhelpers.WaitFor(t, 2*time.Second, func() bool {
		return app.Hub.ClientCount() == 0
	}, "Client was not unregistered")

	if err := app.Hub.Shutdown(time.Second); err != nil {
		t.Errorf("Expected clean shutdown, got %v", err)
	}
}
