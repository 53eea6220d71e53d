package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"ridepool/internal/ports"
)

// ----- Handler: GET /pools/{pool_id} -----

func (handler *MatchingHTTPHandler) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	poolID := strings.TrimSpace(r.PathValue("pool_id"))
	if poolID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "pool_id is required", nil)
		return
	}
	ctx = handler.logger.WithPoolID(ctx, poolID)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.PoolStatus(ctxWithTimeout, poolID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "pool not found", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to load pool status", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
