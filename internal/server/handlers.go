// Package server exposes HTTP handlers for login, group management, WebSocket
// upgrades, and health checks via the Gateway type.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// createdTimeLayout is the human-readable timestamp format used in group
// summaries returned by the HTTP API.
const createdTimeLayout = "02.01.2006, 15:04:05"

// Gateway owns the HTTP surface of the service. It holds references to the
// hub, registries, and configuration so handlers can stay free of package
// globals.
type Gateway struct {
	cfg      *Config
	hub      *Hub
	groups   *GroupRegistry
	sessions *SessionStore
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewGateway wires the HTTP handlers to their collaborators. The WebSocket
// upgrader enforces the configured origin policy.
func NewGateway(cfg *Config, hub *Hub, groups *GroupRegistry, sessions *SessionStore, logger zerolog.Logger) *Gateway {
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Gateway{
		cfg:      cfg,
		hub:      hub,
		groups:   groups,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
		logger: logger,
	}
}

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	IsRegistering bool   `json:"isRegistering"`
}

type loginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	Username string `json:"username"`
}

type createGroupRequest struct {
	Name string `json:"name"`
}

// groupSummary is the JSON shape returned by the group endpoints.
type groupSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	Members int    `json:"members"`
	Created string `json:"created"`
}

// HandleLogin performs the trivial credential check and issues a session
// token. There is no real authentication; any username/password pair passes
// unless a field is missing or a registration password is too short.
func (g *Gateway) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "Имя пользователя и пароль обязательны")
		return
	}

	if req.Username == "" || req.Password == "" {
		g.writeError(w, http.StatusBadRequest, "Имя пользователя и пароль обязательны")
		return
	}

	if req.IsRegistering && len([]rune(req.Password)) < 6 {
		g.writeError(w, http.StatusBadRequest, "Пароль должен содержать минимум 6 символов")
		return
	}

	session := g.sessions.Create(req.Username)
	g.logger.Info().Str("username", req.Username).Msg("User logged in")

	g.writeJSON(w, http.StatusOK, loginResponse{
		Success:  true,
		Token:    session.Token,
		Username: session.Username,
	})
}

// HandleCreateGroup registers a new group and returns its summary, including
// the shareable link derived from the request host.
func (g *Gateway) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, "Название группы обязательно")
		return
	}

	if req.Name == "" {
		g.writeError(w, http.StatusBadRequest, "Название группы обязательно")
		return
	}

	group := g.groups.Create(req.Name, requestBaseURL(r))

	g.writeJSON(w, http.StatusOK, groupSummary{
		ID:      group.ID,
		Name:    group.Name,
		Link:    group.Link,
		Members: 0,
		Created: group.CreatedAt.Format(createdTimeLayout),
	})
}

// HandleJoinGroup returns the summary of an existing group so a client can
// preview it before joining over the realtime channel.
func (g *Gateway) HandleJoinGroup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	group, ok := g.groups.Get(id)
	if !ok {
		g.writeError(w, http.StatusNotFound, "Группа не найдена")
		return
	}

	g.writeJSON(w, http.StatusOK, groupSummary{
		ID:      group.ID,
		Name:    group.Name,
		Link:    group.Link,
		Members: g.groups.MemberCount(id),
		Created: group.CreatedAt.Format(createdTimeLayout),
	})
}

// HandleWebSocket upgrades the HTTP connection to WebSocket, assigns the
// connection id, and registers the client with the hub. The hub launches the
// pump goroutines.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, g.hub, r.RemoteAddr, g.cfg, g.logger)

	// The hub stops draining the register channel once shutdown begins; the
	// select keeps an upgrade that races shutdown from stalling the handler.
	select {
	case g.hub.register <- client:
	case <-g.hub.ctx.Done():
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			g.logger.Error().Err(err).Msg("Error closing connection upgraded during shutdown")
		}
	}
}

// HandleHealth provides a simple health check endpoint that returns server
// status as plain text.
func (g *Gateway) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("LinkRoom server is running!")); err != nil {
		g.logger.Error().Err(err).Msg("Error writing health response")
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error().Err(err).Msg("Error writing JSON response")
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

// requestBaseURL reconstructs the scheme and host the client used, for
// building shareable group links.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
