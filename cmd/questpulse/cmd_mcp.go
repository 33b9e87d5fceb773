package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"questpulse/internal/assistant"
	"questpulse/internal/config"
	"questpulse/internal/engine"
	mcpserver "questpulse/internal/mcp"
	"questpulse/internal/storage/local"
	"questpulse/internal/storage/sqlite"
)

// cmdMCP starts the MCP server for editor agents. It runs its own engine on
// the shared data directory rather than proxying the daemon.
func cmdMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("get questpulse dir: %w", err)
	}

	db, err := sqlite.Open(filepath.Join(baseDir, "data", "questpulse.db"))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}

	registry := assistant.NewRegistry()
	registry.Register("scripted", assistant.NewScriptedProvider())
	if claudeCfg := cfg.Assistant.Providers["claude"]; claudeCfg != nil && claudeCfg.Enabled && claudeCfg.APIKey != "" {
		registry.Register("claude", assistant.NewClaudeProvider(assistant.ClaudeConfig{
			APIKey: claudeCfg.APIKey,
			Model:  claudeCfg.Model,
		}))
	}
	if err := registry.SetDefault(cfg.Assistant.DefaultProvider); err != nil {
		if err := registry.SetDefault("scripted"); err != nil {
			return fmt.Errorf("set default provider: %w", err)
		}
	}

	eng := engine.New(engine.Options{
		HierarchyStore: sqlite.NewHierarchyStore(db),
		Providers:      registry,
		Triggers:       cfg.EffectiveTriggers(),
	})

	// Pick up where the daemon left off if it persisted state.
	if states, err := local.NewStateStore(filepath.Join(baseDir, "data")); err == nil && states.Exists() {
		if state, err := states.Load(); err == nil {
			eng.Restore(state)
		}
	}

	mcpSrv := mcpserver.NewServer(mcpserver.Config{
		Engine: eng,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return mcpSrv.ServeStdio(ctx)
}
