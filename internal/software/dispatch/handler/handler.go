package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"ridepool/internal/domain/user"
	"ridepool/internal/general/jwt"
	"ridepool/internal/general/logger"
	"ridepool/internal/general/websocket"
	"ridepool/internal/ports"
)

// DispatchHTTPHandler adapts HTTP requests to the DispatchService.
type DispatchHTTPHandler struct {
	svc    ports.DispatchService
	logger *logger.Logger
	auth   *jwt.Manager
	hub    *websocket.Hub
}

// NewDispatchHTTPHandler wires an HTTP handler around the DispatchService.
func NewDispatchHTTPHandler(
	svc ports.DispatchService,
	logger *logger.Logger,
	auth *jwt.Manager,
	hub *websocket.Hub,
) *DispatchHTTPHandler {
	return &DispatchHTTPHandler{svc: svc, logger: logger, auth: auth, hub: hub}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *DispatchHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /pools/{pool_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleAccept),
	)
	mux.HandleFunc("POST /pools/{pool_id}/decline",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleDecline),
	)
	mux.HandleFunc("POST /pools/{pool_id}/dispatch",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)(handler.handleDispatch),
	)
	mux.HandleFunc("POST /drivers/location",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleLocationUpdate),
	)

	// WebSocket authenticates in-band with its first frame
	mux.HandleFunc("GET /ws/drivers", handler.hub.ConnectDriver)
}

// ----- general helpers -----

func (handler *DispatchHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *DispatchHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusConflict {
		action = "state_conflict"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *DispatchHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
