package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ridepool/internal/domain/ride"
	"ridepool/internal/ports"
)

// ----- Handler: POST /rides/{ride_id}/cancel -----

func (handler *MatchingHTTPHandler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	rideID := strings.TrimSpace(r.PathValue("ride_id"))
	if rideID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "ride_id is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.CancelRequest(ctxWithTimeout, rideID)
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrNotFound):
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "ride request not found", err)
		case errors.Is(err, ride.ErrInvalidStatusTransition):
			handler.httpError(ctxWithTimeout, w, http.StatusConflict, "ride request is already settled", err)
		default:
			handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to cancel ride request", err)
		}
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
