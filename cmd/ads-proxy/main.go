// Command ads-proxy serves Marketing API listings and insights over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/meta-ads-proxy/internal/server"
	"github.com/Sternrassler/meta-ads-proxy/pkg/ads"
	"github.com/Sternrassler/meta-ads-proxy/pkg/client"
	"github.com/Sternrassler/meta-ads-proxy/pkg/config"
	"github.com/Sternrassler/meta-ads-proxy/pkg/credentials"
	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/Sternrassler/meta-ads-proxy/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// shutdownTimeout bounds the graceful shutdown.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Proxy stopped")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", app.httpServer.Addr).
			Str("api_version", cfg.APIVersion).
			Bool("shared_credentials", cfg.RedisURL != "").
			Msg("Starting ads proxy")
		errCh <- app.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// app holds the wired components.
type app struct {
	httpServer *http.Server
	graph      *client.Client
	redis      *redis.Client
}

// Close releases the Graph API and Redis connections.
func (a *app) Close() {
	if a.graph != nil {
		a.graph.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	store, err := a.credentialStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	usage := ratelimit.NewTracker(logging.NewLogger(logging.ComponentUsage))

	clientCfg := client.DefaultConfig(store)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.APIVersion = cfg.APIVersion
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.MaxRetries = cfg.MaxRetries
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.CircuitBreaker = cfg.CircuitBreaker
	clientCfg.Usage = usage

	graph, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	a.graph = graph

	srv := server.New(server.Config{
		Service:     ads.NewService(graph),
		Credentials: store,
		Usage:       usage,
		StaticDir:   cfg.StaticDir,
	})

	a.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// credentialStore returns the Redis store when REDIS_URL is set, seeded
// with the environment token, or an in-memory store otherwise.
func (a *app) credentialStore(ctx context.Context, cfg *config.Config) (credentials.Store, error) {
	if cfg.RedisURL == "" {
		return credentials.NewMemoryStore(cfg.AccessToken), nil
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = redisClient

	store := credentials.NewRedisStore(redisClient)
	seeded, err := store.Seed(ctx, cfg.AccessToken)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("seed access token: %w", err)
	}
	log.Info().Bool("seeded", seeded).Msg("Using shared credential store")
	return store, nil
}

// newRedisClient accepts "redis://..." URLs or a bare host:port.
func newRedisClient(raw string) (*redis.Client, error) {
	if !strings.Contains(raw, "://") {
		return redis.NewClient(&redis.Options{Addr: raw}), nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
