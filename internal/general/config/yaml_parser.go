package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		rd
		sv
		jw
		pl
	)

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	markSeen := func(s section, name string) error {
		if seenTop[s] {
			return fmt.Errorf("line %d: duplicate '%s' section", lineNo, name)
		}
		seenTop[s] = true
		cur = s
		return nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if len(line) > 0 && (line[0] != ' ' && line[0] != '\t') {
			var err error
			switch strings.TrimSpace(line) {
			case "database:":
				err = markSeen(db, "database")
			case "rabbitmq:":
				err = markSeen(rm, "rabbitmq")
			case "redis:":
				err = markSeen(rd, "redis")
			case "service:":
				err = markSeen(sv, "service")
			case "jwt:":
				err = markSeen(jw, "jwt")
			case "pooling:":
				err = markSeen(pl, "pooling")
			default:
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, strings.TrimSuffix(strings.TrimSpace(line), ":"))
			}
			if err != nil {
				return err
			}
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := strings.TrimLeft(strings.TrimSpace(trim[colon+1:]), " \t")

		intVal := func(field string) (int, error) {
			p, err := strconv.Atoi(resolveScalar(val))
			if err != nil {
				return 0, fmt.Errorf("line %d: %s must be int: %v", lineNo, field, err)
			}
			return p, nil
		}
		floatVal := func(field string) (float64, error) {
			f, err := strconv.ParseFloat(resolveScalar(val), 64)
			if err != nil {
				return 0, fmt.Errorf("line %d: %s must be a number: %v", lineNo, field, err)
			}
			return f, nil
		}

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = resolveScalar(val)
			case "port":
				cfg.Database.Port, err = intVal("database.port")
			case "user":
				cfg.Database.User = resolveScalar(val)
			case "password":
				cfg.Database.Password = resolveScalar(val)
			case "database":
				cfg.Database.Name = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = resolveScalar(val)
			case "port":
				cfg.RabbitMQ.Port, err = intVal("rabbitmq.port")
			case "user":
				cfg.RabbitMQ.User = resolveScalar(val)
			case "password":
				cfg.RabbitMQ.Password = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case rd:
			switch key {
			case "host":
				cfg.Redis.Host = resolveScalar(val)
			case "port":
				cfg.Redis.Port, err = intVal("redis.port")
			case "password":
				cfg.Redis.Password = resolveScalar(val)
			case "geo_key":
				cfg.Redis.GeoKey = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in redis: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "pool_service":
				cfg.Service.PoolServicePort, err = intVal("service.pool_service")
			default:
				return fmt.Errorf("line %d: unknown key in service: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = resolveScalar(val)
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case pl:
			switch key {
			case "max_riders":
				cfg.Pooling.MaxRiders, err = intVal("pooling.max_riders")
			case "max_wait_time_min":
				cfg.Pooling.MaxWaitTimeMin, err = intVal("pooling.max_wait_time_min")
			case "pickup_radius_m":
				cfg.Pooling.PickupRadiusM, err = floatVal("pooling.pickup_radius_m")
			case "destination_radius_m":
				cfg.Pooling.DestinationRadiusM, err = floatVal("pooling.destination_radius_m")
			case "max_detour_pct":
				cfg.Pooling.MaxDetourPct, err = floatVal("pooling.max_detour_pct")
			case "max_assignment_distance_m":
				cfg.Pooling.MaxAssignmentDistanceM, err = floatVal("pooling.max_assignment_distance_m")
			case "offer_timeout_sec":
				cfg.Pooling.OfferTimeoutSec, err = intVal("pooling.offer_timeout_sec")
			case "max_dispatch_attempts":
				cfg.Pooling.MaxDispatchAttempts, err = intVal("pooling.max_dispatch_attempts")
			case "sweep_interval_sec":
				cfg.Pooling.SweepIntervalSec, err = intVal("pooling.sweep_interval_sec")
			default:
				return fmt.Errorf("line %d: unknown key in pooling: %q", lineNo, key)
			}
		}
		if err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
// For example:
//
//	"localhost"  -> localhost
//	'password123' -> password123
//	localhost     -> localhost
//
// This ensures values like jwt.secret_key are not stored with extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
