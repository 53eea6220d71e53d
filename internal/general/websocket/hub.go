package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ridepool/internal/general/jwt"
	"ridepool/internal/general/logger"
	"ridepool/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readWindow       = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub handles rider and driver WebSocket connections with JWT auth. Outbound
// pushes go through per-connection write locks; drivers additionally feed
// location updates and offer responses back into dispatch.
type Hub struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	dispatch ports.DispatchService

	writeLocks  sync.Map // key: *websocket.Conn -> *sync.Mutex
	riderConns  sync.Map // key: riderID(string) -> *websocket.Conn
	driverConns sync.Map // key: driverID(string) -> *websocket.Conn
}

// NewHub creates a connection hub. The dispatch service may be attached later
// via SetDispatch to break the construction cycle between hub and services.
func NewHub(logger *logger.Logger, jwtMgr *jwt.Manager) *Hub {
	return &Hub{
		logger: logger,
		jwtMgr: jwtMgr,
	}
}

// SetDispatch wires the dispatch service used for inbound driver messages.
func (h *Hub) SetDispatch(dispatch ports.DispatchService) {
	h.dispatch = dispatch
}

// ----- outbound sends -----

// SendToRider pushes a JSON message to a connected rider. Riders without an
// open connection are skipped silently; events also flow through the broker.
func (h *Hub) SendToRider(riderID string, msg any) error {
	v, ok := h.riderConns.Load(riderID)
	if !ok {
		return nil
	}
	return h.writeJSON(v.(*websocket.Conn), msg)
}

// SendToDriver pushes a JSON message to a connected driver.
func (h *Hub) SendToDriver(driverID string, msg any) error {
	v, ok := h.driverConns.Load(driverID)
	if !ok {
		return fmt.Errorf("driver %s not connected", driverID)
	}
	return h.writeJSON(v.(*websocket.Conn), msg)
}

// IsDriverConnected reports whether the driver has an open connection.
func (h *Hub) IsDriverConnected(driverID string) bool {
	_, ok := h.driverConns.Load(driverID)
	return ok
}

// ----- write plumbing -----

// lockOf returns the mutex for a specific connection.
func (h *Hub) lockOf(conn *websocket.Conn) *sync.Mutex {
	if v, ok := h.writeLocks.Load(conn); ok {
		if mu, ok := v.(*sync.Mutex); ok && mu != nil {
			return mu
		}
	}
	mu := &sync.Mutex{}
	actual, _ := h.writeLocks.LoadOrStore(conn, mu)
	return actual.(*sync.Mutex)
}

// writeJSON marshals v and writes a single TextMessage to the given connection.
func (h *Hub) writeJSON(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.writeMessage(conn, websocket.TextMessage, payload)
}

// writeMessage sets a short write deadline and writes a message.
func (h *Hub) writeMessage(conn *websocket.Conn, mt int, payload []byte) error {
	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(mt, payload)
}

// writeClose sends a close control frame with the given code and reason.
func (h *Hub) writeClose(conn *websocket.Conn, code int, reason string) {
	mu := h.lockOf(conn)
	mu.Lock()
	defer mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
	h.writeLocks.Delete(conn)
}

// ----- auth handshake helpers -----

// sendAuthError sends authentication error message to client.
func (h *Hub) sendAuthError(conn *websocket.Conn, message string) error {
	errorMsg := map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	}
	msgBytes, err := json.Marshal(errorMsg)
	if err != nil {
		return err
	}
	return h.writeMessage(conn, websocket.TextMessage, msgBytes)
}

// sendAuthSuccess sends authentication success message to client.
func (h *Hub) sendAuthSuccess(conn *websocket.Conn, idField, id string) error {
	successMsg := map[string]any{
		"type":      "auth_success",
		"message":   "Authentication successful",
		"success":   true,
		idField:     id,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	msgBytes, err := json.Marshal(successMsg)
	if err != nil {
		return err
	}
	return h.writeMessage(conn, websocket.TextMessage, msgBytes)
}

// pingLoop keeps the connection alive until a write fails, then closes the
// socket so the read loop exits.
func (h *Hub) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			mu := h.lockOf(conn)
			mu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			mu.Unlock()
			if err != nil {
				_ = conn.Close()
				h.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, nil)
				return
			}
		}
	}
}
