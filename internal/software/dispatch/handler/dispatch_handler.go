package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ridepool/internal/general/jwt"
	"ridepool/internal/ports"
)

// ----- Handler: POST /pools/{pool_id}/dispatch -----

// Manual re-dispatch for operators. The service itself skips pools that are
// not in the filled state, so repeated calls are safe.
func (handler *DispatchHTTPHandler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	poolID := strings.TrimSpace(r.PathValue("pool_id"))
	if poolID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "pool_id is required", nil)
		return
	}
	ctx = handler.logger.WithPoolID(ctx, poolID)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := handler.svc.Dispatch(ctxWithTimeout, poolID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "pool not found", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to dispatch pool", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusAccepted, map[string]string{
		"pool_id": poolID,
		"status":  "dispatching",
	})
}

// --- Request DTO (HTTP boundary) ---

type locationUpdateBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ----- Handler: POST /drivers/location -----

func (handler *DispatchHTTPHandler) handleLocationUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	var req locationUpdateBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	driverID := strings.TrimSpace(claims.Subject)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.UpdateDriverLocation(ctxWithTimeout, driverID, req.Latitude, req.Longitude); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "driver not found", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]string{
		"driver_id": driverID,
		"status":    "location_updated",
	})
}
