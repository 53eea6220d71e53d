package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestEventTagOf(t *testing.T) {
	tests := []struct {
		name     string
		delivery amqp.Delivery
		want     string
	}{
		{
			name:     "type property wins",
			delivery: amqp.Delivery{Type: "pool_filled", Body: []byte(`{"event":"rider_joined"}`)},
			want:     "pool_filled",
		},
		{
			name:     "body discriminator fallback",
			delivery: amqp.Delivery{Body: []byte(`{"event":"driver_assigned","pool_id":"p-1"}`)},
			want:     "driver_assigned",
		},
		{
			name:     "untagged json",
			delivery: amqp.Delivery{Body: []byte(`{"pool_id":"p-1"}`)},
			want:     "",
		},
		{
			name:     "unparseable body",
			delivery: amqp.Delivery{Body: []byte(`not json`)},
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventTagOf(tt.delivery); got != tt.want {
				t.Fatalf("eventTagOf = %q, want %q", got, tt.want)
			}
		})
	}
}
