package service

import (
	"context"
	"math"
	"testing"
	"time"

	"ridepool/internal/domain/geo"
	"ridepool/internal/domain/pool"
	"ridepool/internal/domain/ride"
)

func mustRequest(t *testing.T, riderID string, pickup, destination geo.Point) *ride.Request {
	t.Helper()
	r, err := ride.NewRequest(riderID, pickup, "pickup addr", destination, "destination addr", 10)
	if err != nil {
		t.Fatalf("NewRequest(%s): %v", riderID, err)
	}
	return r
}

func TestIsValidMatch(t *testing.T) {
	basePickup := geo.Point{Latitude: 40.0, Longitude: -74.0}
	baseDest := geo.Point{Latitude: 40.05, Longitude: -74.0}

	// within coordinate tolerance of the member route, so the detour is zero
	nearPickup := geo.Point{Latitude: 40.00005, Longitude: -74.0}
	nearDest := geo.Point{Latitude: 40.05, Longitude: -74.00005}

	now := time.Now().UTC()

	openPool := func(age time.Duration, memberCount int) *pool.Pool {
		return &pool.Pool{
			ID:          "pool-test",
			CreatedAt:   now.Add(-age),
			Status:      pool.StatusOpen,
			MaxRiders:   4,
			MaxWaitTime: 10 * time.Minute,
			MemberCount: memberCount,
		}
	}

	tests := []struct {
		name    string
		pool    *pool.Pool
		members []*ride.Request
		request *ride.Request
		want    bool
	}{
		{
			name:    "identical route joins",
			pool:    openPool(time.Minute, 1),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			request: mustRequest(t, "rider-2", nearPickup, nearDest),
			want:    true,
		},
		{
			name:    "no members",
			pool:    openPool(time.Minute, 0),
			members: nil,
			request: mustRequest(t, "rider-2", nearPickup, nearDest),
			want:    false,
		},
		{
			name:    "pool at capacity",
			pool:    openPool(time.Minute, 4),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			request: mustRequest(t, "rider-2", nearPickup, nearDest),
			want:    false,
		},
		{
			name:    "pool past its wait window",
			pool:    openPool(11*time.Minute, 1),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			request: mustRequest(t, "rider-2", nearPickup, nearDest),
			want:    false,
		},
		{
			name:    "pickup too far from centroid",
			pool:    openPool(time.Minute, 1),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			// ~4.4 km north of the pickup centroid, beyond the 3 km radius
			request: mustRequest(t, "rider-2", geo.Point{Latitude: 40.04, Longitude: -74.0}, nearDest),
			want:    false,
		},
		{
			name:    "destination too far from centroid",
			pool:    openPool(time.Minute, 1),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			request: mustRequest(t, "rider-2", nearPickup, geo.Point{Latitude: 40.09, Longitude: -74.0}),
			want:    false,
		},
		{
			name:    "detour above limit",
			pool:    openPool(time.Minute, 1),
			members: []*ride.Request{mustRequest(t, "rider-1", basePickup, baseDest)},
			// inside both radii but a distinct route, which adds its own
			// full pickup-to-destination leg to the shared estimate
			request: mustRequest(t, "rider-2",
				geo.Point{Latitude: 40.01, Longitude: -74.0},
				geo.Point{Latitude: 40.04, Longitude: -74.0}),
			want: false,
		},
	}

	env := newTestEnv(testConfig())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := env.svc.isValidMatch(context.Background(), tc.pool, tc.members, tc.request, now)
			if got != tc.want {
				t.Fatalf("isValidMatch() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRouteEstimate(t *testing.T) {
	pickupA := geo.Point{Latitude: 40.0, Longitude: -74.0}
	destA := geo.Point{Latitude: 40.05, Longitude: -74.0}
	pickupB := geo.Point{Latitude: 40.01, Longitude: -74.0}
	destB := geo.Point{Latitude: 40.06, Longitude: -74.0}

	a := mustRequest(t, "rider-a", pickupA, destA)
	b := mustRequest(t, "rider-b", pickupB, destB)
	// same place as rider-a within coordinate tolerance
	c := mustRequest(t, "rider-c", geo.Point{Latitude: 40.00005, Longitude: -74.0}, destA)

	t.Run("empty", func(t *testing.T) {
		if got := routeEstimate(nil); got != 0 {
			t.Fatalf("routeEstimate(nil) = %v, want 0", got)
		}
	})

	t.Run("singleton is the direct leg", func(t *testing.T) {
		want := geo.Distance(pickupA, destA)
		if got := routeEstimate([]*ride.Request{a}); got != want {
			t.Fatalf("routeEstimate = %v, want %v", got, want)
		}
	})

	t.Run("same place collapses to one leg", func(t *testing.T) {
		want := geo.Distance(pickupA, destA)
		got := routeEstimate([]*ride.Request{a, c})
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("routeEstimate = %v, want %v", got, want)
		}
	})

	t.Run("distinct routes sum their legs", func(t *testing.T) {
		want := geo.Distance(pickupA, pickupB) +
			geo.Distance(pickupA, destA) +
			geo.Distance(pickupB, destB)
		got := routeEstimate([]*ride.Request{a, b})
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("routeEstimate = %v, want %v", got, want)
		}
	})
}
