package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"nhooyr.io/websocket"
)

// ──────────────────── WebSocket Hub ────────────────────

type WSHub struct {
	mu        sync.RWMutex
	clients   map[*WSClient]bool
	imports   map[string]json.RawMessage // file_id → last import:progress payload
	importsMu sync.RWMutex
}

type WSClient struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[*WSClient]bool),
		imports: make(map[string]json.RawMessage),
	}
}

func (h *WSHub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(WSMessage{Event: event, Data: data})
	if err != nil {
		return
	}

	// Track running imports so new clients get current state.
	switch event {
	case "import:progress":
		h.trackImport(data, msg)
	case "import:complete", "import:failed":
		h.dropImport(data)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *WSHub) trackImport(data interface{}, raw []byte) {
	fileID := fileIDOf(data)
	if fileID == "" {
		return
	}
	h.importsMu.Lock()
	h.imports[fileID] = json.RawMessage(raw)
	h.importsMu.Unlock()
}

func (h *WSHub) dropImport(data interface{}) {
	fileID := fileIDOf(data)
	if fileID == "" {
		return
	}
	h.importsMu.Lock()
	delete(h.imports, fileID)
	h.importsMu.Unlock()
}

func fileIDOf(data interface{}) string {
	// Broadcast payloads are either maps or structs; marshal once and pick
	// the file_id field.
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	var probe struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.FileID
}

// sendActiveImports replays running import state to a new client.
func (h *WSHub) sendActiveImports(client *WSClient) {
	h.importsMu.RLock()
	defer h.importsMu.RUnlock()
	for _, msg := range h.imports {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func (h *WSHub) addClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *WSHub) removeClient(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────── WebSocket Handler ────────────────────

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := s.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warnw("websocket accept", "error", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		userID: claims.UserID.String(),
		send:   make(chan []byte, 64),
	}

	s.wsHub.addClient(client)
	s.wsHub.sendActiveImports(client)
	s.log.Infow("websocket client connected", "user", claims.Username)

	ctx := r.Context()

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for msg := range client.send {
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}()

	// Reader loop keeps the connection alive and handles pings.
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			break
		}
	}

	s.wsHub.removeClient(client)
	s.log.Infow("websocket client disconnected", "user", claims.Username)
}
