package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgewright/agentcore/internal/agentloop"
	"github.com/forgewright/agentcore/internal/auth"
	"github.com/forgewright/agentcore/internal/backoff"
	"github.com/forgewright/agentcore/internal/checkpoint"
	"github.com/forgewright/agentcore/internal/config"
	"github.com/forgewright/agentcore/internal/controlapi"
	"github.com/forgewright/agentcore/internal/eventbus"
	"github.com/forgewright/agentcore/internal/gateway"
	"github.com/forgewright/agentcore/internal/observability"
	"github.com/forgewright/agentcore/internal/pendingtools"
	"github.com/forgewright/agentcore/internal/provider/anthropic"
	"github.com/forgewright/agentcore/internal/provider/openai"
	"github.com/forgewright/agentcore/internal/runmanager"
	"github.com/forgewright/agentcore/internal/sessionactor"
	"github.com/forgewright/agentcore/internal/sessionstore/sqlite"
	"github.com/forgewright/agentcore/internal/toolexec"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session-runtime server and Control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	logger.Info(ctx, "starting agentcored", "version", version, "commit", commit, "config", configPath)

	if err := os.MkdirAll(cfg.Checkpoint.RootDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	checkpoints := checkpoint.NewStore(cfg.Checkpoint.RootDir)

	sessionDBPath := filepath.Join(cfg.Checkpoint.RootDir, "sessions.db")
	sessions, err := sqlite.Open(sessionDBPath)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	servers := make([]toolexec.ServerConfig, 0, len(cfg.MCP.Servers))
	for _, s := range cfg.MCP.Servers {
		servers = append(servers, toolexec.ServerConfig{
			Name: s.Name, Transport: s.Transport, Command: s.Command, Args: s.Args, Env: s.Env, URL: s.URL,
		})
	}
	pool := toolexec.NewClientPool(servers)
	executor := toolexec.NewExecutor(pool, toolexec.Config{
		MaxConcurrency: cfg.Tools.MaxConcurrency,
		DefaultTimeout: cfg.Tools.DefaultTimeout,
		MaxRetries:     cfg.Tools.MaxRetries,
		Backoff:        backoff.DefaultPolicy(),
	})

	providers, defaultProvider, defaultModel, err := buildProviders(cfg.Providers)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}

	bus := eventbus.New(eventbus.DefaultRingSize, eventbus.DefaultSubscriberBuffer)
	pending := pendingtools.New()
	manager := runmanager.New()

	approval := pendingtools.Policy{
		Allowlist:       cfg.Tools.Approval.Allowlist,
		Denylist:        cfg.Tools.Approval.Denylist,
		RequireApproval: cfg.Tools.Approval.RequireApproval,
		Default:         pendingtools.Decision(cfg.Tools.Approval.DefaultDecision),
	}

	actor := sessionactor.New(sessionactor.Deps{
		Bus:           bus,
		Checkpoints:   checkpoints,
		Manager:       manager,
		Pending:       pending,
		Provider:      defaultProvider,
		Executor:      executor,
		Logger:        logger,
		Metrics:       metrics,
		LoopConfig:    agentloop.DefaultConfig().WithModel(defaultModel),
		FlushInterval: cfg.Checkpoint.FlushInterval,
	})

	var authService *auth.Service
	if cfg.Auth.Secret != "" {
		authService = auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenExpiry)
	}

	server := controlapi.New(controlapi.Config{
		Addr:         cfg.Server.Addr,
		Sessions:     sessions,
		Checkpoints:  checkpoints,
		Manager:      manager,
		Pending:      pending,
		Bus:          bus,
		Actor:        actor,
		Executor:     executor,
		Providers:    providers,
		DefaultModel: defaultModel,
		Approval:     approval,
		Auth:         authService,
		Logger:       logger,
		Metrics:      metrics,
	})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(runCtx); err != nil {
		return fmt.Errorf("start control api: %w", err)
	}

	gatewayClient := gateway.NewClient(fmt.Sprintf("http://localhost%s", cfg.Server.Addr), "")
	stopBridges := startChannelBridges(runCtx, cfg.Channels, gatewayClient, logger)

	<-runCtx.Done()
	logger.Info(ctx, "shutdown signal received, draining in-flight requests")
	stopBridges()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown control api: %w", err)
	}

	logger.Info(ctx, "agentcored stopped gracefully")
	return nil
}

// buildProviders constructs every configured LLMProvider, returning the
// full set keyed by name plus a default provider/model pair for sessions
// that don't request one explicitly.
func buildProviders(cfg config.ProvidersConfig) (map[string]agentloop.LLMProvider, agentloop.LLMProvider, string, error) {
	providers := make(map[string]agentloop.LLMProvider)
	var defaultProvider agentloop.LLMProvider
	var defaultModel string

	if cfg.Anthropic.APIKey != "" {
		p, err := anthropic.New(anthropic.Config{
			APIKey:       cfg.Anthropic.APIKey,
			DefaultModel: cfg.Anthropic.DefaultModel,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("anthropic: %w", err)
		}
		providers["anthropic"] = p
		if defaultProvider == nil {
			defaultProvider, defaultModel = p, cfg.Anthropic.DefaultModel
		}
	}

	if cfg.OpenAI.APIKey != "" {
		p, err := openai.New(openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			DefaultModel: cfg.OpenAI.DefaultModel,
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("openai: %w", err)
		}
		providers["openai"] = p
		if defaultProvider == nil {
			defaultProvider, defaultModel = p, cfg.OpenAI.DefaultModel
		}
	}

	if defaultProvider == nil {
		return nil, nil, "", fmt.Errorf("no LLM provider configured: set providers.anthropic.api_key or providers.openai.api_key")
	}
	return providers, defaultProvider, defaultModel, nil
}
