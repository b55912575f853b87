package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/agentmesh/runtime/a2a"
	"github.com/agentmesh/runtime/config"
	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/llm"
	"github.com/agentmesh/runtime/loop"
	"github.com/agentmesh/runtime/orchestrator"
	"github.com/agentmesh/runtime/plan"
	"github.com/agentmesh/runtime/sandbox"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/fsartifact"
	"github.com/agentmesh/runtime/store/inmem"
	"github.com/agentmesh/runtime/store/sqlitestore"
	"github.com/agentmesh/runtime/strategy"
	"github.com/agentmesh/runtime/telemetry"
	"github.com/agentmesh/runtime/tool"
)

// threadTaskStore is the combined ThreadStore/TaskStore surface the
// composition root needs a single backing value for, whether that's
// inmem.ThreadTaskStore or mongostore.Store.
type threadTaskStore interface {
	store.ThreadStore
	store.TaskStore
}

// runServe is the composition root: load config, wire stores, the LLM
// client, the tool pipeline, the orchestrator, and the A2A HTTP surface,
// then serve until a shutdown signal arrives.
func runServe(ctx context.Context, configPath, catalogPath string, debug bool) error {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := telemetry.NewLogger(level)
	ctx = telemetry.WithLogger(ctx, logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger.Info().Str("config", configPath).Str("listen_addr", cfg.ListenAddr).Msg("configuration loaded")

	agents, err := newAgentStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing agent catalog store: %w", err)
	}
	inmemThreads, mongoThreads, err := newThreadTaskStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing thread/task store: %w", err)
	}
	var threads threadTaskStore
	if mongoThreads != nil {
		logger.Info().Str("mongo_db", cfg.ThreadStoreMongoDB).Msg("thread/task store backed by MongoDB")
		threads = mongoThreads
	} else {
		threads = inmemThreads
	}
	scratchpads, err := newScratchpadStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing scratchpad store: %w", err)
	}
	sessions := newSessionStore(cfg)
	externalCalls := inmem.NewRendezvousStore()
	toolAuth := inmem.NewToolAuthStore(signingKey())

	artifacts, err := fsartifact.New(cfg.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("initializing artifact store: %w", err)
	}

	llmClient, err := newLLMClient()
	if err != nil {
		return fmt.Errorf("initializing LLM client: %w", err)
	}

	mcpCaller, mcpDefs, err := newMCPCaller(cfg)
	if err != nil {
		return fmt.Errorf("initializing MCP suites: %w", err)
	}
	if len(mcpDefs) > 0 {
		logger.Info().Int("mcp_tools", len(mcpDefs)).Msg("MCP stdio suites configured")
	}

	var sandboxRunner *sandbox.Runner
	if baseURL := os.Getenv("SANDBOX_URL"); baseURL != "" {
		sandboxRunner = sandbox.NewRunner(baseURL)
	}

	// orch is captured by the loop factory closure below before it exists;
	// the factory is only ever invoked once orchestrator.New has returned
	// and assigned it, since LoopFactory calls happen per Execute request,
	// never during construction.
	var orch *orchestrator.Orchestrator
	factory := newLoopFactory(&orch, llmClient, sandboxRunner, externalCalls, artifacts, mcpCaller, mcpDefs, cfg)
	orch = orchestrator.New(agents, threads, factory)
	o := orch
	o.Start(ctx)

	if err := bootstrapCatalog(ctx, o, agents, catalogPath); err != nil {
		return fmt.Errorf("bootstrapping agent catalog: %w", err)
	}

	handler := a2a.NewHandler(o, threads, threads, scratchpads, toolAuth, sessions, nil)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(a2a.IdentityMiddleware)
	handler.Mount(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("agentd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info().Msg("shutdown signal received, draining in-flight requests")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info().Msg("agentd stopped gracefully")
	return nil
}

// newAgentStore selects the AgentStore backing: an in-memory store by
// default, or a SQLite-backed store (one JSON row per agent) when
// cfg.AgentCatalogDB names a database path, so a deployment can survive
// restarts without re-running the catalog bootstrap file each time.
func newAgentStore(cfg config.Config) (store.AgentStore, error) {
	if cfg.AgentCatalogDB == "" {
		return inmem.NewAgentStore(), nil
	}
	return sqlitestore.OpenAgentStore(cfg.AgentCatalogDB)
}

func signingKey() []byte {
	if key := os.Getenv("SESSION_SIGNING_KEY"); key != "" {
		return []byte(key)
	}
	return []byte("dev-only-insecure-signing-key")
}

// newLLMClient selects the LLM provider from environment configuration.
// Anthropic is the default provider (spec.md §4.2's reference adapter); set
// LLM_PROVIDER=openai or LLM_PROVIDER=bedrock to switch.
func newLLMClient() (llm.Client, error) {
	switch os.Getenv("LLM_PROVIDER") {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			DefaultModel: envOr("OPENAI_DEFAULT_MODEL", "gpt-4o"),
		})
	case "bedrock":
		return llm.NewBedrockClient(context.Background(), llm.BedrockConfig{
			Region:       envOr("AWS_REGION", "us-east-1"),
			DefaultModel: os.Getenv("BEDROCK_DEFAULT_MODEL"),
		})
	default:
		return llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
			DefaultModel: envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-5"),
			MaxRetries:   3,
			RetryDelay:   time.Second,
		})
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newLoopFactory closes over the shared, process-wide collaborators
// (llmClient, sandboxRunner, externalCalls, artifacts, mcpCaller, mcpDefs,
// cfg) and builds one fresh tool.Registry/Pipeline plus
// plan.LLMPlanner/strategy.DefaultExecutor pair per Execute call, matching
// the orchestrator's per-run LoopFactory contract. orch is a pointer to the
// Orchestrator this factory will be installed on; the transfer_to_agent
// built-in's notify closure calls back into it via HandoverAgent. The
// reflect built-in is not registered; the loop's ReflectionFunc comes from
// newReflectionFunc, which calls the provider directly.
func newLoopFactory(orch **orchestrator.Orchestrator, llmClient llm.Client, sandboxRunner *sandbox.Runner, externalCalls store.ExternalToolCallsStore, artifacts tool.ArtifactStore, mcpCaller tool.MCPCaller, mcpDefs []tool.Definition, cfg config.Config) orchestrator.LoopFactory {
	return func(ctx context.Context, def store.AgentDefinition) (*loop.Loop, error) {
		toolFormat := def.ToolFormat
		if toolFormat == "" {
			toolFormat = cfg.ToolFormat
		}
		reasoningDepth := def.ReasoningDepth
		if reasoningDepth == "" {
			reasoningDepth = cfg.ReasoningDepth
		}
		executionMode := def.ExecutionMode
		if executionMode == "" {
			executionMode = cfg.ExecutionMode
		}
		maxIterations := def.MaxIterations
		if maxIterations <= 0 {
			maxIterations = cfg.MaxIterations
		}

		notifyTransfer := func(ec *execctx.Context, h tool.TransferHandoff) {
			if ec == nil || *orch == nil {
				return
			}
			msg, err := event.NewMessage("", event.RoleUser, event.TextPart{Text: h.Message})
			if err != nil {
				return
			}
			_, _ = (*orch).HandoverAgent(ctx, h.AgentName, msg, ec, orchestrator.Overrides{})
		}

		// reflect is deliberately not registered here: reflection runs as a
		// dedicated judge call (newReflectionFunc) against the provider
		// directly, outside the main conversation's tool set, so the model
		// never sees "reflect" as something it can invoke mid-plan.
		defs := []tool.Definition{
			tool.FinalDefinition(),
			tool.TransferToAgentDefinition(notifyTransfer),
			tool.ArtifactToolDefinition(artifacts),
		}
		defs = append(defs, mcpDefs...)

		registry, err := tool.NewRegistry(defs, mcpCaller)
		if err != nil {
			return nil, fmt.Errorf("agentd: building tool registry for %q: %w", def.Name, err)
		}
		pipeline := tool.NewPipeline(registry, externalCalls,
			tool.WithArtifactStore(artifacts),
			tool.WithExternalTimeout(time.Duration(cfg.ExternalToolTimeoutSecs)*time.Second),
		)

		// toolSchemas mirrors defs as provider-native tool schemas, used by
		// both the planner (to describe available tools to the model) and
		// the executor (FormatProvider steps call the provider's native tool
		// use rather than a text-based parser).
		toolSchemas := make([]llm.ToolSchema, 0, len(defs))
		for _, d := range defs {
			toolSchemas = append(toolSchemas, llm.ToolSchema{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.InputSchema,
			})
		}

		formatter, err := plan.NewMessageFormatter("")
		if err != nil {
			return nil, fmt.Errorf("agentd: building message formatter for %q: %w", def.Name, err)
		}

		planCfg := plan.Config{
			Description:       def.Description,
			ReasoningDepth:    reasoningDepth,
			ExecutionMode:     executionMode,
			ToolFormat:        plan.ToolFormat(toolFormat),
			MaxSteps:          maxIterations,
			ReplanEveryNSteps: 1,
			Model:             envOr("AGENT_MODEL", "claude-sonnet-4-5"),
			MaxTokens:         4096,
			Temperature:       0.2,
		}
		planner := plan.NewLLMPlanner(llmClient, formatter, planCfg, toolSchemas)

		stratCfg := strategy.Config{
			Model:          planCfg.Model,
			MaxTokens:      planCfg.MaxTokens,
			Temperature:    planCfg.Temperature,
			ToolFormat:     toolFormat,
			SandboxRuntime: "python",
			SandboxTimeout: 30 * time.Second,
		}
		executor := strategy.NewDefaultExecutor(llmClient, pipeline, sandboxRunner, stratCfg, plan.ParserFor(plan.ToolFormat(toolFormat)), toolSchemas)

		reflectFn := newReflectionFunc(llmClient, planCfg)

		return loop.New(planner, executor, nil, reflectFn, loop.Config{
			MaxIterations:     maxIterations,
			ReflectionEnabled: def.ReflectionEnabled,
		}), nil
	}
}
