package websocket

import (
	"net/http"
	"time"

	"ridepool/internal/domain/user"
	"ridepool/internal/general/jwt"

	"github.com/gorilla/websocket"
)

// ConnectRider handles WebSocket connections from riders with JWT auth.
// Riders only receive pushes here (join, fill, assignment, expiry); all
// commands go through the HTTP API.
func (h *Hub) ConnectRider(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}

	// Teardown order (LIFO on return):
	defer conn.Close()
	defer h.writeLocks.Delete(conn)

	// 2) Set auth deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		h.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		h.sendAuthError(conn, "internal server error")
		return
	}

	// 3) Auth: first frame must be the auth message
	mt, first, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			h.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			h.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		h.sendAuthError(conn, "authentication timeout: please send auth message within 10 seconds")
		return
	}

	if mt != websocket.TextMessage {
		h.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		h.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(first, h.jwtMgr, user.RoleRider)
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		h.sendAuthError(conn, "authentication failed: invalid token")
		return
	}
	riderID := res.Claims.Subject

	// 4) Send authentication success message
	if err := h.sendAuthSuccess(conn, "rider_id", riderID); err != nil {
		h.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	h.logger.Info(r.Context(), "ws_connected", "Rider WebSocket connected",
		map[string]any{"rider_id": riderID})

	// 5) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// 6) Ping loop with per-connection writer lock
	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(r.Context(), conn, done)

	// 7) Register rider connection for outbound notifications; unregister on exit
	h.riderConns.Store(riderID, conn)
	defer h.riderConns.Delete(riderID)

	// 8) Read loop: riders send nothing but pongs and closes
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error(r.Context(), "ws_unexpected_close", "Rider connection closed unexpectedly", err, map[string]any{
					"rider_id": riderID,
				})
				h.writeClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				h.logger.Info(r.Context(), "ws_connection_closed", "Rider connection closed normally", map[string]any{
					"rider_id": riderID,
				})
				h.writeClose(conn, websocket.CloseNormalClosure, "bye")
			}
			return
		}
	}
}
