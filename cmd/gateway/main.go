// cmd/gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"emissions-gateway/internal/breaker"
	"emissions-gateway/internal/cache"
	"emissions-gateway/internal/common/config"
	"emissions-gateway/internal/common/database"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/common/observability"
	"emissions-gateway/internal/common/tracing"
	"emissions-gateway/internal/gateway"
	"emissions-gateway/internal/inference"
	"emissions-gateway/internal/planner"
	"emissions-gateway/internal/ratelimit"
	"emissions-gateway/internal/resolver"
	"emissions-gateway/internal/server"
	"emissions-gateway/internal/warehouse"
	"emissions-gateway/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting emissions gateway...",
		zap.String("version", cfg.App.Version),
		zap.String("warehouseBackend", cfg.Warehouse.Backend),
		zap.String("transport", cfg.Server.Transport),
	)

	obs := observability.New("emissions-gateway")
	defer obs.Shutdown()

	shutdownTracing, err := tracing.Setup("emissions-gateway", cfg.Tracing.JaegerEndpoint)
	if err != nil {
		zapLog.Fatal("tracing setup failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Init warehouse backend with retry ---
	queryTimeout := time.Duration(cfg.Warehouse.QueryTimeout) * time.Millisecond
	var executor warehouse.Executor
	var closeWarehouse func()

	switch cfg.Warehouse.Backend {
	case "elasticsearch":
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		executor = warehouse.NewElasticsearchExecutor(esClient.Client, queryTimeout, log)
		closeWarehouse = func() {}
		zapLog.Info("Elasticsearch connected successfully")

	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		executor = warehouse.NewPostgresExecutor(pg.DB, queryTimeout, log)
		closeWarehouse = func() { pg.Close() }
		zapLog.Info("PostgreSQL connected successfully")
	}
	defer closeWarehouse()

	// --- Init response cache ---
	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		var redisClient *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		store = cache.NewRedisStore(redisClient.Client)
		zapLog.Info("Redis connected successfully")
	} else {
		store = cache.NewMemoryStore(cfg.Cache.Capacity)
	}

	// --- Init inference client ---
	synthesizer := inference.NewClient(&inference.Config{
		BaseURL:     cfg.Inference.BaseURL,
		APIKey:      cfg.Inference.APIKey,
		Timeout:     time.Duration(cfg.Inference.Timeout) * time.Millisecond,
		MaxTokens:   cfg.Inference.MaxTokens,
		Temperature: cfg.Inference.Temperature,
		MaxRPS:      float64(cfg.Inference.MaxRPS),
	}, log)

	// --- Assemble the pipeline ---
	cooldown := time.Duration(cfg.Breaker.CooldownSeconds) * time.Second
	gw := gateway.New(gateway.Options{
		Resolver:         resolver.New(),
		Planner:          planner.New(cfg.Warehouse.DefaultLimit, cfg.Warehouse.MaxLimit),
		Executor:         executor,
		Cache:            store,
		Limiter:          ratelimit.New(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second),
		WarehouseBreaker: breaker.New("warehouse", cfg.Breaker.FailureThreshold, cooldown),
		InferenceBreaker: breaker.New("inference", cfg.Breaker.FailureThreshold, cooldown),
		Synthesizer:      synthesizer,
		CacheTTL:         time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Logger:           log,
	})

	reg, err := registry.Load()
	if err != nil {
		zapLog.Fatal("tool registry load failed", zap.Error(err))
	}

	srv, err := server.New(gw, reg, obs, log)
	if err != nil {
		zapLog.Fatal("mcp server setup failed", zap.Error(err))
	}
	zapLog.Info("All tools registered successfully", zap.Int("toolCount", len(reg.Tools)))

	// --- Ops Server (health, metrics, pprof) ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := executor.HealthCheck(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "not ready",
					"error":  "warehouse unreachable",
				})
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Ops server listening", zap.String("address", cfg.Server.OpsAddress))
		if err := http.ListenAndServe(cfg.Server.OpsAddress, nil); err != nil {
			zapLog.Error("Ops server failed", zap.Error(err))
		}
	}()

	// --- Serve MCP ---
	serveErr := make(chan error, 1)
	go func() {
		switch cfg.Server.Transport {
		case "sse":
			zapLog.Info("Serving MCP over SSE", zap.String("address", cfg.Server.SSEAddress))
			serveErr <- srv.ServeSSE(cfg.Server.SSEAddress)
		default:
			zapLog.Info("Serving MCP over stdio")
			serveErr <- srv.ServeStdio()
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping gateway...")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("MCP server stopped", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLog.Error("Error flushing spans", zap.Error(err))
	}

	zapLog.Info("Gateway stopped gracefully")
}
