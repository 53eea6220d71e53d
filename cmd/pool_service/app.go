package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"ridepool/internal/general/broadcast"
	"ridepool/internal/general/config"
	"ridepool/internal/general/contracts"
	"ridepool/internal/general/jwt"
	"ridepool/internal/general/logger"
	"ridepool/internal/general/metrics"
	"ridepool/internal/general/postgres"
	"ridepool/internal/general/rabbitmq"
	"ridepool/internal/general/redisgeo"
	"ridepool/internal/general/scheduler"
	"ridepool/internal/general/websocket"
	"ridepool/internal/routing"
	dispatchhandler "ridepool/internal/software/dispatch/handler"
	dispatchservice "ridepool/internal/software/dispatch/service"
	matchinghandler "ridepool/internal/software/matching/handler"
	matchingservice "ridepool/internal/software/matching/service"
	"ridepool/internal/software/sweep"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// run wires the pool service and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string, maxConcurrent int) error {
	// set up a new logger with a static request ID for startup logs
	logger := logger.New("pool-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// set up a Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// connect to RabbitMQ
	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	// set up the RabbitMQ publisher
	pub := rabbitmq.NewMQPublisher(rmq)

	// connect the Redis GEO index for driver positions
	locations, err := redisgeo.NewIndex(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer locations.Close()

	// set up the JWT manager
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// set up the necessary repos
	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRequestRepo()
	poolRepo := postgres.NewPoolRepo()
	memberRepo := postgres.NewMembershipRepo()
	driverRepo := postgres.NewDriverRepo()
	tripRepo := postgres.NewTripRepo()

	// the hub is constructed before the services; dispatch is attached below
	hub := websocket.NewHub(logger, jwtManager)
	broadcaster := broadcast.New(logger, pub, hub)
	tasks := scheduler.New(ctx, logger)

	// set up the dispatch and matching services
	dispatchSvc := dispatchservice.NewDispatchService(
		logger, cfg, uow,
		poolRepo, memberRepo, rideRepo, driverRepo, tripRepo,
		broadcaster, tasks, locations,
	)
	hub.SetDispatch(dispatchSvc)

	matchingSvc := matchingservice.NewMatchingService(
		logger, cfg, uow,
		rideRepo, poolRepo, memberRepo,
		routing.NewSequencer(),
		broadcaster, tasks, dispatchSvc,
	)

	// run the expiry sweep in the background
	go sweep.New(logger, cfg, uow, poolRepo, rideRepo, memberRepo, broadcaster, tasks).Run(ctx)

	// journal pool lifecycle events from the broker for operational tracing
	go runPoolEventJournal(ctx, logger, rmq)

	// set up the HTTP handlers and their routes
	mux := http.NewServeMux()
	matchinghandler.NewMatchingHTTPHandler(matchingSvc, logger, jwtManager, hub).RegisterRoutes(mux)
	dispatchhandler.NewDispatchHTTPHandler(dispatchSvc, logger, jwtManager, hub).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// concurrency limiter (global) blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, withHTTPMetrics(mux, mux))

	// set up the server configurations
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.PoolServicePort),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Pool Service started on port %d", cfg.Service.PoolServicePort),
		map[string]any{"port": cfg.Service.PoolServicePort, "max_concurrent": maxConcurrent},
	)

	// start the server in a background goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	// wait for context cancellation or server error
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Pool Service shutting down", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"port": cfg.Service.PoolServicePort})
			return err
		}
		return nil
	}

	// let in-flight deferred tasks (dispatch rounds, offer timers) finish
	tasks.Wait()
	logger.Info(ctx, "shutdown_complete", "Pool Service stopped", nil)

	return nil
}

// runPoolEventJournal consumes the pool events queue and writes every event
// to the structured log. Restarts on broker hiccups until ctx is cancelled.
func runPoolEventJournal(ctx context.Context, log *logger.Logger, rmq *rabbitmq.Client) {
	for {
		err := rmq.ConsumeEvents(ctx, contracts.QueuePoolEvents, "pool-service-journal", 16,
			func(ctx context.Context, d rabbitmq.EventDelivery) error {
				log.Info(ctx, "pool_event_journal", "Pool event observed on broker", map[string]any{
					"routing_key": d.RoutingKey,
					"event":       d.Tag,
					"size":        len(d.Body),
				})
				return nil
			})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error(ctx, "journal_consume_failed", "Pool event journal stopped, restarting", err, nil)
		}
		time.Sleep(time.Second)
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}

// statusRecorder captures the response status for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// withHTTPMetrics records request counts and latency per method/pattern/status.
func withHTTPMetrics(next http.Handler, mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// WebSocket upgrades hijack the connection and never write a status
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)

		// the route pattern keeps the label cardinality bounded
		_, path := mux.Handler(r)
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(rec.status)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(started).Seconds())
	})
}
