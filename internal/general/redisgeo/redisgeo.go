package redisgeo

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"ridepool/internal/domain/geo"
	"ridepool/internal/general/config"
	"ridepool/internal/ports"

	"github.com/redis/go-redis/v9"
)

// Index tracks driver positions in a Redis GEO sorted set. Positions here are
// a fast lookup cache; the drivers table remains the durable fallback.
type Index struct {
	client *redis.Client
	key    string
}

// NewIndex connects a Redis client and returns the location index.
func NewIndex(ctx context.Context, cfg *config.Config) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		Password: cfg.Redis.Password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Index{client: client, key: cfg.Redis.GeoKey}, nil
}

var _ ports.DriverLocationIndex = (*Index)(nil)

// Upsert stores or refreshes a driver's position.
func (idx *Index) Upsert(ctx context.Context, driverID string, p geo.Point) error {
	err := idx.client.GeoAdd(ctx, idx.key, &redis.GeoLocation{
		Name:      driverID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis geoadd: %w", err)
	}
	return nil
}

// Position returns the driver's indexed position, or nil without error when
// the driver is not in the index.
func (idx *Index) Position(ctx context.Context, driverID string) (*geo.Point, error) {
	res, err := idx.client.GeoPos(ctx, idx.key, driverID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geopos: %w", err)
	}
	if len(res) == 0 || res[0] == nil {
		return nil, nil
	}
	return &geo.Point{Latitude: res[0].Latitude, Longitude: res[0].Longitude}, nil
}

// Remove drops a driver from the index, typically when the driver goes
// offline or is assigned.
func (idx *Index) Remove(ctx context.Context, driverID string) error {
	if err := idx.client.ZRem(ctx, idx.key, driverID).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (idx *Index) Close() error {
	return idx.client.Close()
}
