package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session wraps one WebSocket connection belonging to a client.
type Session struct {
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (s *Session) Conn() *websocket.Conn {
	return s.conn
}

// Hub manages active WebSocket connections per tenant client. A client may
// hold several connections at once (multiple tabs or integrations); sync and
// newsletter progress events fan out to all of them.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]map[*Session]struct{} // clientID -> set of sessions
	maxPerClient int
}

// NewHub creates a Hub with a per-client connection limit.
func NewHub(maxPerClient int) *Hub {
	if maxPerClient <= 0 {
		maxPerClient = 10
	}
	return &Hub{
		sessions:     make(map[string]map[*Session]struct{}),
		maxPerClient: maxPerClient,
	}
}

// Register adds a WebSocket connection for the given client. If the
// per-client limit is exceeded, the new connection is closed and nil is
// returned.
func (h *Hub) Register(clientID string, conn *websocket.Conn) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	clientSessions, ok := h.sessions[clientID]
	if !ok {
		clientSessions = make(map[*Session]struct{})
		h.sessions[clientID] = clientSessions
	}

	if len(clientSessions) >= h.maxPerClient {
		log.Printf("websocket: client %s exceeded max connections (%d), closing new connection", clientID, h.maxPerClient)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this client"),
			// Zero deadline - best effort.
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	session := &Session{conn: conn}
	clientSessions[session] = struct{}{}
	return session
}

// Unregister removes a session for the given client and closes the
// connection.
func (h *Hub) Unregister(clientID string, session *Session) {
	if session == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clientSessions, ok := h.sessions[clientID]
	if !ok {
		_ = session.conn.Close()
		return
	}

	delete(clientSessions, session)

	if len(clientSessions) == 0 {
		delete(h.sessions, clientID)
	}

	_ = session.conn.Close()
}

// Broadcast JSON-encodes an event and sends it to every active session of
// the client. Encoding or write failures are logged, never returned: events
// are advisory.
func (h *Hub) Broadcast(clientID string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket: failed to encode event for client %s: %v", clientID, err)
		return
	}
	h.Send(clientID, payload)
}

// Send delivers a raw message to all active sessions of the client. The
// session set is snapshotted under the lock; Register and Unregister mutate
// the live map, so iterating it directly would race with them.
func (h *Hub) Send(clientID string, msg []byte) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions[clientID]))
	for session := range h.sessions[clientID] {
		sessions = append(sessions, session)
	}
	h.mu.RUnlock()

	for _, session := range sessions {
		if err := session.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("websocket: failed to write message for client %s: %v", clientID, err)
			// Best-effort cleanup: unregister this session.
			go h.Unregister(clientID, session)
		}
	}
}

// ActiveConnections returns the number of active sessions for a client.
func (h *Hub) ActiveConnections(clientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[clientID])
}
