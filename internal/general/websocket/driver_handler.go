package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ridepool/internal/domain/user"
	"ridepool/internal/general/jwt"

	"github.com/gorilla/websocket"
)

// ConnectDriver handles WebSocket connections from drivers with JWT auth.
// Drivers receive pool offers here and push back acceptance decisions and
// location updates.
func (h *Hub) ConnectDriver(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()              // close the socket last
	defer h.writeLocks.Delete(conn) // forget per-connection mutex (idempotent)

	// 2) Set auth deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		h.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		h.sendAuthError(conn, "internal server error")
		return
	}

	// 3) Auth: first frame must be the auth message
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			h.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			h.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		h.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}

	if msgType != websocket.TextMessage {
		h.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		h.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, h.jwtMgr, user.RoleDriver)
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		h.sendAuthError(conn, "authentication failed: invalid token")
		return
	}
	driverID := res.Claims.Subject

	// 4) Send authentication success message
	if err := h.sendAuthSuccess(conn, "driver_id", driverID); err != nil {
		h.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	h.logger.Info(r.Context(), "ws_connected", "Driver WebSocket connected",
		map[string]any{"driver_id": driverID})

	// 5) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// 6) Ping loop with per-connection writer lock
	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(r.Context(), conn, done)

	// 7) Register this driver for outbound pool offers; unregister on exit
	h.driverConns.Store(driverID, conn)
	defer h.driverConns.Delete(driverID)

	// 8) Read loop: route messages
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error(r.Context(), "ws_unexpected_close", "Driver connection closed unexpectedly", err, map[string]any{
					"driver_id": driverID,
				})
				h.writeClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				h.logger.Info(r.Context(), "ws_connection_closed", "Driver connection closed normally", map[string]any{
					"driver_id": driverID,
				})
				h.writeClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		// Minimal envelope
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(payload, &msg); err != nil {
			_ = h.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"bad json"}`))
			continue
		}

		switch msg.Type {
		case "pool_response":
			if err := h.handlePoolResponse(r.Context(), conn, driverID, msg.Data); err != nil {
				h.logger.Error(r.Context(), "driver_ws_message_failed", "pool response failed", err, map[string]any{
					"driver_id": driverID,
				})
			}

		case "location_update":
			if err := h.handleLocationUpdate(r.Context(), conn, driverID, msg.Data); err != nil {
				h.logger.Error(r.Context(), "driver_ws_message_failed", "location update failed", err, map[string]any{
					"driver_id": driverID,
				})
			}

		default:
			_ = h.writeMessage(conn, websocket.TextMessage, []byte(`{"type":"error","error":"unknown message type"}`))
		}
	}
}

// handlePoolResponse routes a driver's accept/decline decision to dispatch.
func (h *Hub) handlePoolResponse(ctx context.Context, conn *websocket.Conn, driverID string, data json.RawMessage) error {
	if h.dispatch == nil {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": "dispatch unavailable"})
	}

	var body struct {
		PoolID   string `json:"pool_id"`
		Accepted bool   `json:"accepted"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.PoolID == "" {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": "bad pool_response payload"})
	}

	if !body.Accepted {
		if err := h.dispatch.Decline(ctx, driverID, body.PoolID); err != nil {
			return h.writeJSON(conn, map[string]any{"type": "error", "error": err.Error()})
		}
		return h.writeJSON(conn, map[string]any{"type": "pool_response_ack", "pool_id": body.PoolID, "accepted": false})
	}

	result, err := h.dispatch.Accept(ctx, driverID, body.PoolID)
	if err != nil {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": err.Error(), "pool_id": body.PoolID})
	}
	return h.writeJSON(conn, map[string]any{
		"type":      "pool_response_ack",
		"pool_id":   result.PoolID,
		"trip_id":   result.TripID,
		"accepted":  true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLocationUpdate routes a driver position report to dispatch.
func (h *Hub) handleLocationUpdate(ctx context.Context, conn *websocket.Conn, driverID string, data json.RawMessage) error {
	if h.dispatch == nil {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": "dispatch unavailable"})
	}

	var body struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": "bad location_update payload"})
	}

	if err := h.dispatch.UpdateDriverLocation(ctx, driverID, body.Latitude, body.Longitude); err != nil {
		return h.writeJSON(conn, map[string]any{"type": "error", "error": err.Error()})
	}
	return nil
}
