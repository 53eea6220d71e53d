package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	Redis struct {
		Host     string
		Port     int
		Password string
		GeoKey   string
	}
	Service struct {
		PoolServicePort int
	}
	JWT struct {
		SecretKey string
	}
	Pooling struct {
		MaxRiders              int
		MaxWaitTimeMin         int
		PickupRadiusM          float64
		DestinationRadiusM     float64
		MaxDetourPct           float64
		MaxAssignmentDistanceM float64
		OfferTimeoutSec        int
		MaxDispatchAttempts    int
		SweepIntervalSec       int
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MaxWaitTime returns the pool wait window as a duration.
func (c *Config) MaxWaitTime() time.Duration {
	return time.Duration(c.Pooling.MaxWaitTimeMin) * time.Minute
}

// OfferTimeout returns the driver offer window as a duration.
func (c *Config) OfferTimeout() time.Duration {
	return time.Duration(c.Pooling.OfferTimeoutSec) * time.Second
}

// SweepInterval returns the expiry sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Pooling.SweepIntervalSec) * time.Second
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "drivers_geo"
	}

	// Service
	if cfg.Service.PoolServicePort == 0 {
		cfg.Service.PoolServicePort = 3000
	}

	// Pooling knobs (spec defaults)
	if cfg.Pooling.MaxRiders == 0 {
		cfg.Pooling.MaxRiders = 4
	}
	if cfg.Pooling.MaxWaitTimeMin == 0 {
		cfg.Pooling.MaxWaitTimeMin = 10
	}
	if cfg.Pooling.PickupRadiusM == 0 {
		cfg.Pooling.PickupRadiusM = 3000
	}
	if cfg.Pooling.DestinationRadiusM == 0 {
		cfg.Pooling.DestinationRadiusM = 3000
	}
	if cfg.Pooling.MaxDetourPct == 0 {
		cfg.Pooling.MaxDetourPct = 0.15
	}
	if cfg.Pooling.MaxAssignmentDistanceM == 0 {
		cfg.Pooling.MaxAssignmentDistanceM = 10000
	}
	if cfg.Pooling.OfferTimeoutSec == 0 {
		cfg.Pooling.OfferTimeoutSec = 60
	}
	if cfg.Pooling.MaxDispatchAttempts == 0 {
		cfg.Pooling.MaxDispatchAttempts = 3
	}
	if cfg.Pooling.SweepIntervalSec == 0 {
		cfg.Pooling.SweepIntervalSec = 60
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Redis
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		problems = append(problems, "redis.port must be in 1..65535")
	}

	// Service
	if c.Service.PoolServicePort <= 0 || c.Service.PoolServicePort > 65535 {
		problems = append(problems, "service.pool_service must be in 1..65535")
	}

	// Pooling
	if c.Pooling.MaxRiders < 1 {
		problems = append(problems, "pooling.max_riders must be >= 1")
	}
	if c.Pooling.MaxWaitTimeMin < 1 {
		problems = append(problems, "pooling.max_wait_time_min must be >= 1")
	}
	if c.Pooling.PickupRadiusM <= 0 {
		problems = append(problems, "pooling.pickup_radius_m must be > 0")
	}
	if c.Pooling.DestinationRadiusM <= 0 {
		problems = append(problems, "pooling.destination_radius_m must be > 0")
	}
	if c.Pooling.MaxDetourPct <= 0 || c.Pooling.MaxDetourPct >= 1 {
		problems = append(problems, "pooling.max_detour_pct must be in (0, 1)")
	}
	if c.Pooling.MaxAssignmentDistanceM <= 0 {
		problems = append(problems, "pooling.max_assignment_distance_m must be > 0")
	}
	if c.Pooling.OfferTimeoutSec < 1 {
		problems = append(problems, "pooling.offer_timeout_sec must be >= 1")
	}
	if c.Pooling.MaxDispatchAttempts < 1 {
		problems = append(problems, "pooling.max_dispatch_attempts must be >= 1")
	}
	if c.Pooling.SweepIntervalSec < 1 {
		problems = append(problems, "pooling.sweep_interval_sec must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
