package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/akozma/mailcore/internal/auth"
	ws "github.com/akozma/mailcore/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for sync and newsletter
// progress events.
type WebSocketHandler struct {
	resolver auth.ClientResolver
	hub      *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(resolver auth.ClientResolver, hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{
		resolver: resolver,
		hub:      hub,
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; the server is expected to run behind a reverse
		// proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the hub. Authentication is via query parameter (?token=...) since browsers
// cannot set headers on WebSocket connections; the Authorization header is
// accepted as a fallback for non-browser callers.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		log.Println("WebSocketHandler: No token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	client, err := h.resolver.ResolveToken(r.Context(), token)
	if err != nil {
		log.Printf("WebSocketHandler: Token resolution failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for client %s: %v", client.ID, err)
		return
	}

	session := h.hub.Register(client.ID, conn)
	if session == nil {
		log.Printf("WebSocketHandler: Connection rejected for client %s (max connections exceeded)", client.ID)
		return
	}

	// Read loop keeps the connection open and detects disconnects.
	go h.readLoop(client.ID, session)
}

func (h *WebSocketHandler) readLoop(clientID string, session *ws.Session) {
	conn := session.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(clientID, session)
}
