package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ridepool/internal/general/jwt"
	"ridepool/internal/ports"
)

// ----- Handler: POST /pools/{pool_id}/accept -----

func (handler *DispatchHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	poolID := strings.TrimSpace(r.PathValue("pool_id"))
	if poolID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "pool_id is required", nil)
		return
	}
	ctx = handler.logger.WithPoolID(ctx, poolID)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	driverID := strings.TrimSpace(claims.Subject)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.Accept(ctxWithTimeout, driverID, poolID)
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrAssignmentTaken):
			handler.httpError(ctxWithTimeout, w, http.StatusConflict, "pool already assigned to another driver", err)
		case errors.Is(err, ports.ErrDriverUnavailable):
			handler.httpError(ctxWithTimeout, w, http.StatusConflict, "driver is not available", err)
		case errors.Is(err, ports.ErrNotFound):
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "pool not found", err)
		default:
			handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to accept pool", err)
		}
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// ----- Handler: POST /pools/{pool_id}/decline -----

func (handler *DispatchHTTPHandler) handleDecline(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	poolID := strings.TrimSpace(r.PathValue("pool_id"))
	if poolID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "pool_id is required", nil)
		return
	}
	ctx = handler.logger.WithPoolID(ctx, poolID)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}
	driverID := strings.TrimSpace(claims.Subject)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := handler.svc.Decline(ctxWithTimeout, driverID, poolID); err != nil {
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to record decline", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, map[string]string{
		"pool_id":   poolID,
		"driver_id": driverID,
		"status":    "declined",
	})
}
