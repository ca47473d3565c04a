// Command gatewaysrv is the DeFi conversation orchestrator's entrypoint:
// it loads configuration, wires the LLM Adapter, Tool Registry, Session
// Store, Conversation Orchestrator, and Connection Gateway together, and
// serves WebSocket traffic alongside liveness/metrics HTTP endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yieldline-labs/copilot/internal/agent"
	"github.com/yieldline-labs/copilot/internal/agent/providers"
	"github.com/yieldline-labs/copilot/internal/config"
	"github.com/yieldline-labs/copilot/internal/gateway"
	"github.com/yieldline-labs/copilot/internal/infra"
	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/internal/sessions"
	"github.com/yieldline-labs/copilot/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional; env vars and defaults otherwise apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	startedAt := time.Now()

	breakerRegistry := infra.NewRegistry(infra.CircuitBreakerConfig{
		FailureThreshold: cfg.LLM.CircuitThreshold,
		ResetTimeout:     cfg.LLM.CircuitReset(),
	})

	var provider agent.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = providers.NewAnthropic(cfg.LLM.APIKey, cfg.LLM.Model, breakerRegistry.Get("anthropic"), logger, metrics)
	case "openai":
		provider = providers.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, breakerRegistry.Get("openai"), logger, metrics)
	default:
		fmt.Fprintln(os.Stderr, "unsupported llm provider:", cfg.LLM.Provider)
		os.Exit(1)
	}

	toolRegistry := agent.NewRegistry()
	if err := tools.RegisterAll(toolRegistry); err != nil {
		fmt.Fprintln(os.Stderr, "tool registration failed:", err)
		os.Exit(1)
	}

	sessionStore := sessions.NewStore(sessions.Config{
		MaxHistory:      cfg.Session.MaxHistoryLength,
		SessionTimeout:  cfg.Session.SessionTimeout(),
		CleanupInterval: cfg.Session.CleanupInterval(),
	})
	defer sessionStore.Stop()

	orchestrator := agent.NewOrchestrator(provider, toolRegistry, sessionStore, agent.OrchestratorConfig{
		MaxRounds:      cfg.LLM.MaxRounds,
		RequestTimeout: cfg.LLM.RequestTimeout(),
		ToolTimeout:    cfg.LLM.ToolTimeout(),
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		SystemPrompt:   defaultSystemPrompt,
	}, logger, metrics)

	gw := gateway.New(gateway.Config{
		PingInterval:     time.Duration(cfg.Gateway.PingIntervalMs) * time.Millisecond,
		MaxConnections:   cfg.Gateway.MaxConnections,
		MessageQueueSize: cfg.Gateway.MessageQueueSize,
		CORSOrigin:       cfg.Gateway.CORSOrigin,
	}, orchestrator, logger, metrics)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/metrics/snapshot", handleSnapshot(startedAt, gw, sessionStore, breakerRegistry, metrics, cfg.Gateway.MaxConnections))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("gateway listening", "addr", addr, "provider", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = gw.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
}

const defaultSystemPrompt = "You are a helpful assistant for decentralized-finance questions. " +
	"Use the available tools to answer questions about gas prices, crypto prices, lending rates, and token balances."

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func handleSnapshot(startedAt time.Time, gw *gateway.Gateway, store *sessions.Store, breakers *infra.Registry, metrics *observability.Metrics, maxConnections int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		sessionMetrics := store.Snapshot()
		llmRequests, llmFailures := metrics.LLMSnapshot()

		fmt.Fprintf(w, `{"uptimeSeconds":%d,"memoryBytes":%d,"connections":{"active":%d,"max":%d},"sessions":{"active":%d,"totalMessages":%d},"llm":{"requests":%d,"failures":%d,"circuitState":%q}}`,
			int(time.Since(startedAt).Seconds()),
			mem.Alloc,
			gw.ActiveConnections(),
			maxConnections,
			sessionMetrics.ActiveSessions,
			sessionMetrics.TotalMessages,
			llmRequests,
			llmFailures,
			firstBreakerState(breakers),
		)
	}
}

func firstBreakerState(breakers *infra.Registry) string {
	states := breakers.States()
	for _, s := range states {
		return s
	}
	return infra.StateClosed
}
