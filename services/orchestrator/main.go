// Copyright (C) 2025 SmartBot Labs (eng@smartbot-labs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/smartbot-labs/smartbot/services/llm"
	"github.com/smartbot-labs/smartbot/services/orchestrator/config"
	"github.com/smartbot-labs/smartbot/services/orchestrator/conversation"
	"github.com/smartbot-labs/smartbot/services/orchestrator/handlers"
	"github.com/smartbot-labs/smartbot/services/orchestrator/knowledge"
	"github.com/smartbot-labs/smartbot/services/orchestrator/middleware"
	"github.com/smartbot-labs/smartbot/services/orchestrator/observability"
	"github.com/smartbot-labs/smartbot/services/orchestrator/prompt"
	"github.com/smartbot-labs/smartbot/services/orchestrator/routes"
	"github.com/smartbot-labs/smartbot/services/orchestrator/session"
	"github.com/smartbot-labs/smartbot/services/orchestrator/tools"
)

// initTracer sets up OTLP trace export over gRPC. An empty endpoint
// disables export; spans are still created but never leave the process.
func initTracer(endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		slog.Info("Trace export disabled, no OTLP endpoint configured")
		return func(context.Context) {}, nil
	}

	ctx := context.Background()
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("smartbot-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	cleanup, err := initTracer(cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	slog.Info("Configuring the LLM client", "backend", cfg.LLM.Backend)
	llmClient, err := llm.NewFromEnv(cfg.LLM.Backend)
	if err != nil {
		log.Fatalf("failed to initialize LLM client: %v", err)
	}

	metrics := observability.InitMetrics()
	sessions := session.NewStore()
	index := knowledge.NewIndex(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	registry := tools.NewBuiltinRegistry()
	prompts := prompt.NewManager(cfg.Prompts.Dir, cfg.Prompts.Version)
	defer prompts.Close()

	engine := conversation.NewEngine(llmClient, sessions, index, registry, prompts,
		conversation.WithMaxToolRounds(cfg.Chat.MaxToolRounds),
		conversation.WithTopChunks(cfg.Chat.TopChunks),
		conversation.WithMetrics(metrics))

	handler := handlers.NewHandler(engine, sessions, index, registry, prompts, metrics)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Close()

	router := gin.Default()
	router.Use(otelgin.Middleware("smartbot-orchestrator"))
	routes.SetupRoutes(router, handler, limiter)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("Starting the orchestrator server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down the orchestrator server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
