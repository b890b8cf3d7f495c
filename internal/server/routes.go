// Package server wires HTTP handlers into a ServeMux for the LinkRoom
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the auth and group API, the WebSocket endpoint, the health check,
// and the static front-end fallback.
func SetupRoutes(gw *Gateway) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", gw.HandleLogin)
	mux.HandleFunc("POST /api/groups", gw.HandleCreateGroup)
	mux.HandleFunc("POST /api/groups/{id}/join", gw.HandleJoinGroup)
	mux.HandleFunc("GET /ws", gw.HandleWebSocket)
	mux.HandleFunc("GET /health", gw.HandleHealth)
	mux.Handle("/", NewStaticHandler(gw.cfg.StaticDir, gw.logger))
	return mux
}
