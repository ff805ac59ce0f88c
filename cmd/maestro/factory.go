package main

import (
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ferrule/maestro/internal/assign"
	"github.com/ferrule/maestro/internal/config"
	"github.com/ferrule/maestro/internal/engine"
	"github.com/ferrule/maestro/internal/llm"
	"github.com/ferrule/maestro/internal/orchestrator"
	"github.com/ferrule/maestro/internal/state"
)

// buildContext holds everything a command needs to drive the engine, plus
// the watchers to close when the command exits.
type buildContext struct {
	orch    *orchestrator.Orchestrator
	store   *state.DB
	watcher *assign.Watcher
}

// buildOrchestrator wires an Orchestrator from the loaded configuration.
// A missing API key is not fatal: the engine runs with heuristic
// classification and deterministic synthesis.
func buildOrchestrator() (*buildContext, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}

	var completer llm.Completer
	ac, err := llm.NewAnthropicCompleter(llm.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		log.Printf("completion service unavailable, using deterministic fallbacks: %v", err)
	} else {
		completer = ac
	}

	roster := assign.DefaultRoster()
	var watcher *assign.Watcher
	if cfg.Roster.Path != "" {
		roster, err = assign.LoadRoster(cfg.Roster.Path)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load roster: %w", err)
		}
		if cfg.Roster.Watch {
			watcher, err = assign.WatchRoster(roster, cfg.Roster.Path)
			if err != nil {
				log.Printf("roster watcher disabled: %v", err)
			}
		}
	}

	logger := orchestrator.NopLogger()
	if cfg.Execution.DebugLog != "" {
		logger, err = orchestrator.NewDebugLogger(cfg.Execution.DebugLog)
		if err != nil {
			log.Printf("debug log disabled: %v", err)
			logger = orchestrator.NopLogger()
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:     db,
		Completer: completer,
		Roster:    roster,
		Logger:    logger,
		Engine: engine.Config{
			MaxRetries:     cfg.Execution.MaxRetries,
			Backoff:        cfg.Execution.Backoff,
			SubtaskTimeout: cfg.Execution.SubtaskTimeout,
		},
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &buildContext{orch: orch, store: db, watcher: watcher}, nil
}

// close releases the orchestrator and its resources.
func (b *buildContext) close() {
	if b.watcher != nil {
		b.watcher.Close()
	}
	b.orch.Close()
	b.store.Close()
}
