package service

import (
	"time"

	"ridepool/internal/domain/ride"
	"ridepool/internal/general/contracts"

	"github.com/google/uuid"
)

const producerName = "pool-service"

// newEnvelope stamps cross-cutting headers on an outbound event.
func newEnvelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}

// nowUTC is the single clock read used for wait-window math.
func nowUTC() time.Time {
	return time.Now().UTC()
}

// riderIDsOf collects the rider ids of the given requests.
func riderIDsOf(requests []*ride.Request) []string {
	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.RiderID)
	}
	return ids
}
