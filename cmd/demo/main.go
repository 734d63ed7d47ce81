// Command demo wires every package in this repo into one runnable agent
// execution: config.Load, a concrete provider adapter (llmclient/anthropic
// or llmclient/openai, chosen by config.Models.Provider), store.Postgres
// when AGENTCORE_POSTGRES_DSN is set (store.InMemory otherwise), the
// in-memory durable-execution engine, and looprunner.Runner driving the
// loop to completion. Grounded on cmd/demo/main.go's
// register-then-Run-then-print shape; generalized from that file's
// Goa-generated runtime.New()/MustClientFor() plumbing down to this repo's
// engine.Engine/looprunner.Runner pair.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bagofwords/agentcore/bus"
	"github.com/bagofwords/agentcore/config"
	"github.com/bagofwords/agentcore/contexthub"
	"github.com/bagofwords/agentcore/engine"
	"github.com/bagofwords/agentcore/engine/inmem"
	"github.com/bagofwords/agentcore/llmclient"
	"github.com/bagofwords/agentcore/llmclient/anthropic"
	"github.com/bagofwords/agentcore/llmclient/openai"
	"github.com/bagofwords/agentcore/looprunner"
	"github.com/bagofwords/agentcore/planner"
	"github.com/bagofwords/agentcore/store"
	"github.com/bagofwords/agentcore/tools"
	"github.com/bagofwords/agentcore/toolruntime"
)

const workflowName = "agentcore.run"

// noTools is the demo's looprunner.ToolLookup: no tools are registered, so
// the model-backed planner must answer from the model alone.
func noTools(string) (toolruntime.Tool, bool) { return nil, false }

func main() {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("demo: load config: %v", err)
	}
	if cfg.Models.Default == "" {
		// config.Default() deliberately leaves model routing empty (it is
		// deployment-specific); the demo needs something concrete to call.
		cfg.Models.Provider = "anthropic"
		cfg.Models.Default = "claude-3-5-sonnet-20241022"
	}

	st, closeStore, err := openStore(ctx)
	if err != nil {
		log.Fatalf("demo: open store: %v", err)
	}
	defer closeStore()

	modelClient, err := buildModelClient(cfg)
	if err != nil {
		log.Fatalf("demo: build model client: %v", err)
	}

	eventBus := bus.New()
	logSub := bus.SubscriberFunc(func(_ context.Context, ev bus.Event) error {
		fmt.Printf("[%s] seq=%d %s\n", ev.Type, ev.Seq, ev.At.Format(time.RFC3339))
		return nil
	})
	if _, err := eventBus.Register(logSub); err != nil {
		log.Fatalf("demo: register event subscriber: %v", err)
	}

	runner := looprunner.New(
		looprunner.Config{
			StepLimit:            cfg.StepLimit,
			MaxInvalidRetries:    cfg.MaxInvalidRetries,
			MaxToolFailures:      cfg.MaxToolFailures,
			MaxRepeatedSuccesses: cfg.MaxRepeatedSuccesses,
		},
		looprunner.Deps{
			Bus:     eventBus,
			Store:   st,
			Tools:   tools.NewRegistry(),
			Hub:     contexthub.NewHub(),
			Planner: planner.NewModelAdapter(modelClient, cfg.ModelClassID(llmclient.ModelClassDefault)),
			Lookup:  noTools,
		},
	)

	eng := inmem.New()
	if err := eng.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: workflowName,
		Handler: func(wfCtx engine.WorkflowContext, input any) (any, error) {
			in, ok := input.(looprunner.Input)
			if !ok {
				return nil, fmt.Errorf("demo: unexpected workflow input type %T", input)
			}
			return runner.Run(wfCtx, in)
		},
	}); err != nil {
		log.Fatalf("demo: register workflow: %v", err)
	}

	handle, err := eng.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:       "demo-run-1",
		Workflow: workflowName,
		Input: looprunner.Input{
			AgentExecutionID: "demo-run-1",
			CompletionID:     "demo-completion-1",
			UserMessage:      "Say hello and explain what you can do in one sentence.",
			Mode:             "research",
		},
	})
	if err != nil {
		log.Fatalf("demo: start workflow: %v", err)
	}

	var result *looprunner.Result
	if err := handle.Wait(ctx, &result); err != nil {
		log.Fatalf("demo: run failed: %v", err)
	}

	fmt.Println("status:", result.Status)
	if result.FinalAnswer != nil {
		fmt.Println("final answer:", *result.FinalAnswer)
	}
}

// loadConfig reads AGENTCORE_CONFIG_PATH when set, else returns
// config.Default() so the demo runs with zero setup.
func loadConfig() (*config.ExecutionConfig, error) {
	path := os.Getenv("AGENTCORE_CONFIG_PATH")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore wires store.Postgres when AGENTCORE_POSTGRES_DSN is present,
// per the review requirement that NewPostgres have a real caller; otherwise
// it falls back to store.InMemory so the demo still runs without a
// database.
func openStore(ctx context.Context) (store.Store, func(), error) {
	dsn := os.Getenv("AGENTCORE_POSTGRES_DSN")
	if dsn == "" {
		return store.NewInMemory(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	return store.NewPostgres(pool), pool.Close, nil
}

// buildModelClient constructs the concrete provider adapter named by
// cfg.Models.Provider, reading its API key from the conventional
// environment variable.
func buildModelClient(cfg *config.ExecutionConfig) (llmclient.Client, error) {
	switch cfg.Models.Provider {
	case "openai":
		return openai.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), openai.Options{
			DefaultModel: cfg.Models.Default,
			HighModel:    cfg.Models.High,
			SmallModel:   cfg.Models.Small,
			MaxTokens:    4096,
		})
	case "anthropic", "":
		return anthropic.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), anthropic.Options{
			DefaultModel: cfg.Models.Default,
			HighModel:    cfg.Models.High,
			SmallModel:   cfg.Models.Small,
			MaxTokens:    4096,
		})
	default:
		return nil, fmt.Errorf("demo: unsupported model provider %q (bedrock has no C14 adapter in this repo)", cfg.Models.Provider)
	}
}
