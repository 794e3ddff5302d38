// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command crm starts the Aleutian CRM API server.
//
// The CRM conversational core provides:
//   - Chat-driven CRM operations (accounts, contacts, deals, interactions, tags)
//   - Duplicate detection on contact and deal creation
//   - Free-text analytics compiled to query plans
//   - Inline chart payloads for chartable results
//
// Usage:
//
//	go run ./cmd/crm
//	go run ./cmd/crm -port 9090 -store-path /var/lib/aleutian/crm
//
// With OpenAI:
//
//	CRM_PROVIDER=openai OPENAI_API_KEY=sk-... go run ./cmd/crm
//
// With Ollama:
//
//	CRM_PROVIDER=ollama OLLAMA_BASE_URL=http://localhost:11434 go run ./cmd/crm
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/crm/health
//
//	# List available tools
//	curl http://localhost:8080/v1/crm/tools | jq
//
//	# Chat
//	curl -X POST http://localhost:8080/v1/crm/chat \
//	  -H "Content-Type: application/json" \
//	  -H "X-User-ID: u-1" \
//	  -d '{"messages": [{"role": "user", "content": "Add Acme Corp as an account"}]}'
//
//	# Analytics
//	curl -X POST http://localhost:8080/v1/crm/analytics \
//	  -H "Content-Type: application/json" \
//	  -d '{"question": "Show deals by stage"}'
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianCRM/services/crm"
	"github.com/AleutianAI/AleutianCRM/services/crm/analyst"
	"github.com/AleutianAI/AleutianCRM/services/crm/chat"
	"github.com/AleutianAI/AleutianCRM/services/crm/dedup"
	"github.com/AleutianAI/AleutianCRM/services/crm/intent"
	"github.com/AleutianAI/AleutianCRM/services/crm/providers"
	"github.com/AleutianAI/AleutianCRM/services/crm/store"
	"github.com/AleutianAI/AleutianCRM/services/crm/store/badgerstore"
	"github.com/AleutianAI/AleutianCRM/services/crm/store/memstore"
	"github.com/AleutianAI/AleutianCRM/services/crm/tools"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	storePath := flag.String("store-path", "", "BadgerDB data directory (empty = in-memory store)")
	rateRPS := flag.Float64("rate-rps", 5, "Model calls per second (0 disables rate limiting)")
	rateBurst := flag.Int("rate-burst", 10, "Model call burst size")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so spans correlate across the gateway.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	recordStore, closeStore := openStore(*storePath)
	defer closeStore()

	chatClient, err := providers.NewFromEnv()
	if err != nil {
		slog.Error("Failed to create chat provider", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *rateRPS > 0 {
		limited, err := providers.NewRateLimitedClient(chatClient, *rateRPS, *rateBurst)
		if err != nil {
			slog.Error("Failed to create rate limiter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		chatClient = limited
	}

	handlers, err := buildHandlers(recordStore, chatClient)
	if err != nil {
		slog.Error("Failed to build service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-crm"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	crm.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, *storePath)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down Aleutian CRM server")
		closeStore()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Aleutian CRM server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openStore selects the Record Store backend: BadgerDB when a path is
// given, in-memory otherwise. The returned close func is idempotent-enough
// for the double call on shutdown (Badger tolerates it).
func openStore(path string) (store.RecordStore, func()) {
	if path == "" {
		slog.Info("Using in-memory record store (data is not persisted)")
		return memstore.New(), func() {}
	}

	st, err := badgerstore.Open(badgerstore.Config{Path: path})
	if err != nil {
		slog.Error("Failed to open BadgerDB store",
			slog.String("path", path),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("BadgerDB record store opened", slog.String("path", path))
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("Failed to close BadgerDB store", slog.String("error", err.Error()))
		}
	}
}

// buildHandlers wires the domain packages: store, detector, tenant
// resolver, dispatcher, extractor, planner, engine, chat runner.
func buildHandlers(recordStore store.RecordStore, chatClient providers.ChatClient) (*crm.Handlers, error) {
	detector, err := dedup.NewDetector(recordStore)
	if err != nil {
		return nil, err
	}
	resolver, err := tools.NewPrefsTenantResolver(recordStore)
	if err != nil {
		return nil, err
	}
	dispatcher, err := tools.NewDispatcher(recordStore, detector, resolver)
	if err != nil {
		return nil, err
	}
	extractor, err := intent.NewExtractor(chatClient, intent.DefaultConfig())
	if err != nil {
		return nil, err
	}

	schema, err := analyst.LoadSchema()
	if err != nil {
		return nil, err
	}
	planner, err := analyst.NewLLMPlanner(chatClient, "")
	if err != nil {
		return nil, err
	}
	engine, err := analyst.NewEngine(recordStore, planner, schema)
	if err != nil {
		return nil, err
	}

	runner, err := chat.NewRunner(extractor, dispatcher, chatClient)
	if err != nil {
		return nil, err
	}

	return crm.NewHandlers(runner, engine, dispatcher, nil)
}

func printBanner(port int, storePath string) {
	storeDesc := "in-memory (ephemeral)"
	if storePath != "" {
		storeDesc = "BadgerDB at " + storePath
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                       ALEUTIAN CRM SERVER                         ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Conversational CRM: chat-driven operations and analytics.        ║
║  Store: %-57s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/crm/health                │  ║
║  │                                                             │  ║
║  │ # List tools                                                │  ║
║  │ curl http://localhost:%d/v1/crm/tools | jq            │  ║
║  │                                                             │  ║
║  │ # Chat                                                      │  ║
║  │ curl -X POST http://localhost:%d/v1/crm/chat \        │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"messages":[{"role":"user","content":"..."}]}'       │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Chat: POST /v1/crm/chat                                      ║
║  ├── Analytics: POST /v1/crm/analytics                            ║
║  ├── Tools: GET /v1/crm/tools, POST /v1/crm/tools/call            ║
║  └── Metrics: GET /metrics                                        ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, storeDesc, port, port, port)
}
