package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhyrom-forks/BunnyPlugins/internal/catchup"
)

var upgrader = websocket.Upgrader{
	// Dev tooling is reached from editor extensions and local pages alike.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsConn adapts a gorilla websocket connection to catchup.Conn. Gorilla
// permits a single concurrent writer, so writes are serialized here; the
// heartbeat goroutine and broadcast pushes both go through Send.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// handleWS upgrades the connection and runs its read loop. The connection
// stays inert until a valid handshake message arrives; malformed or
// unrecognized messages are dropped without a reply and without closing the
// connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err)
		return
	}

	wc := &wsConn{conn: conn}
	s.bcast.OnConnect(wc)
	defer func() {
		s.bcast.OnDisconnect(wc)
		_ = wc.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Debug("Websocket read ended", "error", err)
			return
		}

		var msg catchup.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Dropping unparsable client message")
			continue
		}
		if msg.Op != catchup.OpConnect || msg.Identity == "" {
			slog.Debug("Dropping unrecognized client message", "op", msg.Op)
			continue
		}
		// Duplicate handshakes are ignored inside the broadcaster.
		s.bcast.Handshake(wc, msg.Identity)
	}
}
