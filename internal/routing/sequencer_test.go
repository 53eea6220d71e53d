package routing

import (
	"fmt"
	"testing"

	"ridepool/internal/domain/ride"
)

func testRequest(id string) *ride.Request {
	return &ride.Request{ID: id}
}

func TestSequenceSingleton(t *testing.T) {
	s := NewSequencer()
	plan := s.Sequence([]*ride.Request{testRequest("a")})

	if len(plan.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %d", len(plan.Stops))
	}
	if plan.Stops[0].Kind != Pickup || plan.Stops[1].Kind != Dropoff {
		t.Fatalf("expected pickup then dropoff, got %v then %v", plan.Stops[0].Kind, plan.Stops[1].Kind)
	}
	if plan.PickupOrder["a"] != 1 || plan.DropoffOrder["a"] != 1 {
		t.Fatalf("expected orders (1,1), got (%d,%d)", plan.PickupOrder["a"], plan.DropoffOrder["a"])
	}
}

func TestSequencePickupsPrecedeDropoffs(t *testing.T) {
	s := NewSequencer()
	plan := s.Sequence([]*ride.Request{testRequest("a"), testRequest("b"), testRequest("c")})

	if len(plan.Stops) != 6 {
		t.Fatalf("expected 6 stops, got %d", len(plan.Stops))
	}
	for i, stop := range plan.Stops[:3] {
		if stop.Kind != Pickup {
			t.Errorf("stop %d: expected pickup, got %v", i, stop.Kind)
		}
	}
	for i, stop := range plan.Stops[3:] {
		if stop.Kind != Dropoff {
			t.Errorf("stop %d: expected dropoff, got %v", i+3, stop.Kind)
		}
	}
}

func TestSequenceOrdersArePermutations(t *testing.T) {
	s := NewSequencer()

	for _, n := range []int{1, 2, 4, 7} {
		requests := make([]*ride.Request, 0, n)
		for i := 0; i < n; i++ {
			requests = append(requests, testRequest(fmt.Sprintf("r%d", i)))
		}
		plan := s.Sequence(requests)

		for name, orders := range map[string]map[string]int{
			"pickup":  plan.PickupOrder,
			"dropoff": plan.DropoffOrder,
		} {
			if len(orders) != n {
				t.Fatalf("n=%d: %s orders have %d entries", n, name, len(orders))
			}
			seen := make(map[int]bool, n)
			for id, order := range orders {
				if order < 1 || order > n {
					t.Fatalf("n=%d: %s order for %s out of range: %d", n, name, id, order)
				}
				if seen[order] {
					t.Fatalf("n=%d: duplicate %s order %d", n, name, order)
				}
				seen[order] = true
			}
		}
	}
}

func TestSequenceCollapsesDuplicates(t *testing.T) {
	s := NewSequencer()
	a := testRequest("a")
	plan := s.Sequence([]*ride.Request{a, testRequest("b"), a, a})

	if len(plan.PickupOrder) != 2 || len(plan.DropoffOrder) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 entries, got %d/%d",
			len(plan.PickupOrder), len(plan.DropoffOrder))
	}
	if len(plan.Stops) != 4 {
		t.Fatalf("expected 4 stops for 2 distinct requests, got %d", len(plan.Stops))
	}
	if plan.PickupOrder["a"] != 1 || plan.PickupOrder["b"] != 2 {
		t.Fatalf("expected stable input order, got a=%d b=%d",
			plan.PickupOrder["a"], plan.PickupOrder["b"])
	}
}
