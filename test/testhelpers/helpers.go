// Package testhelpers provides common utilities and helper functions for
// testing the LinkRoom server.
//
// This package contains reusable test utilities that are shared across unit
// and integration tests. It provides functions for assembling a fully wired
// test application, making HTTP requests, driving the realtime channel, and
// asserting response properties to reduce code duplication in test files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/linkroom/linkroom/internal/server"
)

// App bundles a running test instance of the service with handles to its
// in-memory state for assertions.
type App struct {
	Server   *httptest.Server
	Hub      *server.Hub
	Groups   *server.GroupRegistry
	Sessions *server.SessionStore
	Config   *server.Config
}

// StartApp assembles and starts a fully wired application on an httptest
// server. The test server's own URL is added to the allowed origins so
// WebSocket clients created by the helpers pass the origin check. The app is
// shut down automatically when the test finishes.
func StartApp(t *testing.T, customize func(cfg *server.Config)) *App {
	t.Helper()

	logger := zerolog.Nop()
	cfg := server.NewConfig()

	// The handler is wired after the server starts because the origin policy
	// needs the server's URL; the indirection keeps requests working either way.
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))

	cfg.AllowedOrigins = append([]string{ts.URL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	cfg = cfg.Sanitize()

	sessions := server.NewSessionStore()
	groups := server.NewGroupRegistry(logger)
	hub := server.NewHub(groups, logger)
	go hub.Run()

	gateway := server.NewGateway(cfg, hub, groups, sessions, logger)
	handler = server.SetupRoutes(gateway)

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return &App{
		Server:   ts,
		Hub:      hub,
		Groups:   groups,
		Sessions: sessions,
		Config:   cfg,
	}
}

// WebSocketURL returns the ws:// address of the app's realtime endpoint.
func (a *App) WebSocketURL() string {
	return "ws" + a.Server.URL[len("http"):] + "/ws"
}

// PostJSON sends a JSON body to the app path and returns the response.
func PostJSON(t *testing.T, baseURL, path string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	return resp
}

// DecodeJSON decodes the response body into out and closes the body.
func DecodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// GroupSummary mirrors the JSON shape returned by the group endpoints.
type GroupSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	Members int    `json:"members"`
	Created string `json:"created"`
}

// CreateGroup creates a group through the HTTP API and fails the test on any
// unexpected response.
func CreateGroup(t *testing.T, app *App, name string) GroupSummary {
	t.Helper()

	resp := PostJSON(t, app.Server.URL, "/api/groups", map[string]string{"name": name})
	AssertStatusCode(t, resp, http.StatusOK)

	var summary GroupSummary
	DecodeJSON(t, resp, &summary)
	if summary.ID == "" {
		t.Fatal("Group creation returned an empty id")
	}
	return summary
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorBody checks that the response body is a JSON error object with
// the expected message.
func AssertErrorBody(t *testing.T, resp *http.Response, expected string) {
	t.Helper()

	var body map[string]string
	DecodeJSON(t, resp, &body)
	if body["error"] != expected {
		t.Errorf("Expected error %q, got %q", expected, body["error"])
	}
}

// ConnectWebSocket creates a WebSocket connection to the app's realtime
// endpoint with an allowed Origin header.
func ConnectWebSocket(t *testing.T, app *App) *websocket.Conn {
	t.Helper()

	conn, err := DialWebSocket(app.WebSocketURL(), app.Server.URL)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWebSocket dials a WebSocket endpoint with the given Origin header and
// returns the connection or an error.
func DialWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes an event envelope to the connection.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal event data: %v", err)
	}
	frame := server.Event{Event: event, Data: payload}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to send %s event: %v", event, err)
	}
}

// ReceiveEvent reads the next event envelope from the connection and decodes
// its payload into out.
func ReceiveEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration, out any) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var frame server.Event
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	if out != nil {
		if err := json.Unmarshal(frame.Data, out); err != nil {
			t.Fatalf("Failed to decode %s payload: %v", frame.Event, err)
		}
	}
	return frame.Event
}

// ExpectEvent reads the next event and fails the test unless it carries the
// expected event name.
func ExpectEvent(t *testing.T, conn *websocket.Conn, expected string, out any) {
	t.Helper()

	got := ReceiveEvent(t, conn, 2*time.Second, out)
	if got != expected {
		t.Fatalf("Expected event %q, got %q", expected, got)
	}
}

// ExpectNoEvent asserts that no frame arrives on the connection within the
// timeout.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, frame, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, but received: %s", frame)
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitFor polls the condition until it holds or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
