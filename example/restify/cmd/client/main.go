package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kroma-labs/restify-go/example/restify/internal/api"
	"github.com/kroma-labs/restify-go/example/restify/internal/config"
	"github.com/kroma-labs/restify-go/example/restify/internal/telemetry"
	"github.com/kroma-labs/restify-go/invoker"
	"github.com/kroma-labs/restify-go/resilience"
)

func main() {
	ctx := context.Background()

	// 1. Setup OpenTelemetry (Tracing + Metrics)
	providers, err := telemetry.Setup(ctx)
	if err != nil {
		log.Fatalf("Failed to setup OTel: %v", err)
	}
	defer func() {
		if err := providers.Shutdown(ctx); err != nil {
			log.Printf("Telemetry shutdown error: %v", err)
		}
	}()

	// 2. Start Prometheus Metrics Server
	mux := http.NewServeMux()
	mux.Handle("/metrics", providers.Handler())
	metricsServer := &http.Server{Addr: config.MetricsPort, Handler: mux}
	go func() {
		log.Printf("Starting Prometheus metrics server on %s", config.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Metrics server failed: %v", err)
		}
	}()

	// 3. Load client settings: restify.yaml when present, RESTIFY_* overrides
	path := config.ConfigFile
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := invoker.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultBaseURL
	}
	cfg.ServiceName = config.ServiceName

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	client, err := invoker.New(
		invoker.WithConfig(cfg),
		invoker.WithLogger(logger),
		invoker.WithBreaker(resilience.DefaultBreakerConfig()),
		invoker.WithErrorResponseFallback(resilience.EmptyOnNotFound()),
		invoker.WithTracerProvider(providers.Tracer),
		invoker.WithMeterProvider(providers.Meter),
		invoker.WithPrometheusRegisterer(providers.Registry),
	)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	users := api.New(client)

	// 4. Call the API in a loop
	tracer := providers.Tracer.Tracer("example-app")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(config.OperationInterval) * time.Second)
	defer ticker.Stop()

	fmt.Println("Restify example app started")
	fmt.Println("Prometheus metrics: http://localhost:2112/metrics")
	fmt.Println("Press Ctrl+C to stop...")

	id := 0
	for {
		select {
		case <-ticker.C:
			id = id%12 + 1
			ctx, span := tracer.Start(ctx, "api-calls")

			// Users 11 and 12 do not exist; the 404 becomes an empty result.
			if u, ok, err := users.User(ctx, id); err != nil {
				log.Printf("Failed to get user %d: %v", id, err)
			} else if !ok {
				log.Printf("User %d not found", id)
			} else {
				log.Printf("User %d: %s <%s>", id, u.Name, u.Email)
			}

			if posts, err := users.Posts(ctx, id); err != nil {
				log.Printf("Failed to list posts: %v", err)
			} else {
				log.Printf("User %d has %d posts", id, len(posts))
			}

			status, post, err := users.CreatePost(ctx, api.Post{UserID: id, Title: "hello", Body: "from restify"})
			if err != nil {
				log.Printf("Failed to create post: %v", err)
			} else {
				log.Printf("Created post %d (%s)", post.ID, status)
			}

			span.End()

		case <-sigChan:
			fmt.Println("\nShutting down gracefully...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Printf("Metrics server shutdown error: %v", err)
			}
			return
		}
	}
}
