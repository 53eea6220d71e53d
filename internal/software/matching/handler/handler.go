package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ridepool/internal/domain/user"
	"ridepool/internal/general/jwt"
	"ridepool/internal/general/logger"
	"ridepool/internal/general/websocket"
	"ridepool/internal/ports"
)

// MatchingHTTPHandler adapts HTTP requests to the MatchingService.
type MatchingHTTPHandler struct {
	svc    ports.MatchingService
	logger *logger.Logger
	auth   *jwt.Manager
	hub    *websocket.Hub
}

// NewMatchingHTTPHandler wires an HTTP handler around the MatchingService.
func NewMatchingHTTPHandler(
	svc ports.MatchingService,
	logger *logger.Logger,
	auth *jwt.Manager,
	hub *websocket.Hub,
) *MatchingHTTPHandler {
	return &MatchingHTTPHandler{svc: svc, logger: logger, auth: auth, hub: hub}
}

// RegisterRoutes mounts matching endpoints on the provided mux.
func (handler *MatchingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rides",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider)(handler.handleSubmitRequest),
	)
	mux.HandleFunc("POST /rides/{ride_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider)(handler.handleCancelRequest),
	)
	mux.HandleFunc("GET /pools/{pool_id}",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleRider, user.RoleDriver, user.RoleAdmin)(handler.handlePoolStatus),
	)

	// WebSocket authenticates in-band with its first frame
	mux.HandleFunc("GET /ws/riders", handler.hub.ConnectRider)

	mux.HandleFunc("POST /tokens", handler.handleCreateToken)
}

// ----- token issuing (development convenience) -----

type TokenRequest struct {
	UserID string    `json:"user_id"`
	Role   user.Role `json:"role"`
}

// TokenResponse represents the response for token generation
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
	Role      user.Role `json:"role"`
}

func (handler *MatchingHTTPHandler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	tokenString, claims, err := handler.auth.IssueUserToken(req.UserID, req.Role)
	if err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to generate token", err)
		return
	}

	response := TokenResponse{
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    req.UserID,
		Role:      req.Role,
	}

	handler.logger.Info(ctx, "token_generated", "JWT token generated successfully",
		map[string]any{"user_id": req.UserID, "role": req.Role.String()})

	handler.jsonResponse(ctx, w, http.StatusCreated, response)
}

// ----- general helpers -----

func (handler *MatchingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
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
func (handler *MatchingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *MatchingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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
