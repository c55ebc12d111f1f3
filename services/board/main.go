// Copyright (C) 2025 Dealdesk Labs (eng@dealdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dealdesk/boardroom/pkg/logging"
	"github.com/dealdesk/boardroom/services/board/credits"
	"github.com/dealdesk/boardroom/services/board/datatypes"
	"github.com/dealdesk/boardroom/services/board/members"
	"github.com/dealdesk/boardroom/services/board/middleware"
	"github.com/dealdesk/boardroom/services/board/observability"
	"github.com/dealdesk/boardroom/services/board/routes"
	"github.com/dealdesk/boardroom/services/board/session"
	"github.com/dealdesk/boardroom/services/board/storage"
	"github.com/dealdesk/boardroom/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config is the service configuration, loaded from the environment.
type Config struct {
	Port         string `env:"BOARD_PORT" envDefault:"12310"`
	DataDir      string `env:"BOARD_DATA_DIR" envDefault:"/var/lib/boardroom"`
	LogDir       string `env:"BOARD_LOG_DIR"`
	OTELEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"boardroom-otel-collector:4317"`

	DebateRounds       int           `env:"BOARD_DEBATE_ROUNDS" envDefault:"2"`
	PerCallTimeout     time.Duration `env:"BOARD_MEMBER_CALL_TIMEOUT" envDefault:"90s"`
	ConsensusThreshold float64       `env:"BOARD_CONSENSUS_THRESHOLD" envDefault:"0.6667"`

	InitialCredits    int           `env:"BOARD_INITIAL_CREDITS" envDefault:"25"`
	MaxConcurrent     int           `env:"BOARD_MAX_CONCURRENT_SESSIONS" envDefault:"2"`
	SessionsPerPeriod int           `env:"BOARD_SESSIONS_PER_PERIOD" envDefault:"10"`
	Period            time.Duration `env:"BOARD_SESSION_PERIOD" envDefault:"1h"`

	SeedDemoDeal bool `env:"BOARD_SEED_DEMO_DEAL" envDefault:"true"`
}

func initTracer(endpoint string) (func(context.Context), error) {
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
		resource.WithAttributes(semconv.ServiceNameKey.String("board-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildRoster binds each configured member to its provider client. Members
// whose backend cannot initialize (missing key, unset base URL) are dropped
// from the roster with a warning rather than blocking startup; a board can
// convene with a partial bench.
func buildRoster() []members.Slot {
	clients := map[string]func() (llm.LLMClient, error){
		"openai":    func() (llm.LLMClient, error) { return llm.NewOpenAIClient() },
		"anthropic": func() (llm.LLMClient, error) { return llm.NewAnthropicClient() },
		"ollama":    func() (llm.LLMClient, error) { return llm.NewOllamaClient() },
	}
	cached := map[string]llm.LLMClient{}

	var slots []members.Slot
	for _, m := range datatypes.DefaultRoster() {
		client, ok := cached[m.Provider]
		if !ok {
			builder, known := clients[m.Provider]
			if !known {
				slog.Warn("Unknown provider for board member, skipping", "memberId", m.Id, "provider", m.Provider)
				continue
			}
			var err error
			client, err = builder()
			if err != nil {
				slog.Warn("Provider client unavailable, dropping member from roster",
					"memberId", m.Id, "provider", m.Provider, "error", err)
				continue
			}
			cached[m.Provider] = client
		}
		slots = append(slots, members.Slot{Member: m, Caller: client})
	}
	return slots
}

func seedDemoDeal(store *storage.Store) {
	ctx := context.Background()
	if _, err := store.Load(ctx, "demo-deal"); err == nil {
		return
	}
	demo := datatypes.AnalysisContext{
		DealId:   "demo-deal",
		DealName: "Acme Logistics Acquisition",
		Summary:  "Mid-market logistics SaaS, $12M ARR, 9% YoY growth, founder-led sales.",
		Tier1: []datatypes.Finding{
			{Category: "financial", Severity: "medium", Detail: "Top 3 customers are 41% of ARR."},
			{Category: "legal", Severity: "low", Detail: "Two expired customer MSAs operating on implied terms."},
			{Category: "technical", Severity: "high", Detail: "Core routing engine depends on an unsupported ORM fork."},
		},
		Tier2: []datatypes.Finding{
			{Category: "market", Severity: "medium", Detail: "Churn concentrated in SMB tier; enterprise NRR is 112%."},
		},
	}
	if err := store.PutAnalysisContext(ctx, demo); err != nil {
		slog.Warn("Failed to seed demo deal", "error", err)
		return
	}
	slog.Info("Seeded demo deal analysis context", "dealId", demo.DealId)
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("FATAL: could not parse environment configuration: %v", err)
	}

	logger := logging.New(logging.Config{Service: "board", LogDir: cfg.LogDir})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer(cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	db, err := storage.Open(storage.DefaultConfig(cfg.DataDir))
	if err != nil {
		log.Fatalf("FATAL: could not open the board store at %s: %v", cfg.DataDir, err)
	}
	defer db.Close()
	store := storage.NewStore(db)

	if cfg.SeedDemoDeal {
		seedDemoDeal(store)
	}

	slots := buildRoster()
	pool, err := members.NewPool(slots, cfg.PerCallTimeout)
	if err != nil {
		log.Fatalf("FATAL: could not assemble the board roster: %v", err)
	}
	slog.Info("Board roster assembled", "members", len(slots))

	gate := credits.NewMemoryGate(credits.Config{
		InitialCredits:    cfg.InitialCredits,
		MaxConcurrent:     cfg.MaxConcurrent,
		SessionsPerPeriod: cfg.SessionsPerPeriod,
		Period:            cfg.Period,
	}, store)

	ctrl := session.NewController(pool, gate, store, store, session.Config{
		DebateRounds:       cfg.DebateRounds,
		ConsensusThreshold: cfg.ConsensusThreshold,
	}, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("board-service"))

	routes.SetupRoutes(router, ctrl, store, middleware.NopAuthProvider{})
	log.Println("Starting the board service on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
