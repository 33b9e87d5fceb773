package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"questpulse/internal/archive"
	"questpulse/internal/assistant"
	"questpulse/internal/config"
	"questpulse/internal/daemon"
	"questpulse/internal/domain"
	"questpulse/internal/engine"
	"questpulse/internal/eventlog"
	"questpulse/internal/queue"
	"questpulse/internal/storage/local"
	"questpulse/internal/storage/sqlite"
	"questpulse/internal/trigger"
)

const (
	pidFileName = "questpulsed.pid"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Ensure ~/.questpulse directory exists
	baseDir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("ensure questpulse dir: %w", err)
	}

	// Load configuration: environment first, then local config file
	envCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load local config: %w", err)
	}

	// Setup logging
	logLevel := parseLogLevel(cfg.Daemon.LogLevel)
	if envCfg.Debug {
		logLevel = slog.LevelDebug
	}
	logFile, err := setupLogging(baseDir, logLevel)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Write PID file
	pidPath := filepath.Join(baseDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	// Hierarchy store (SQLite)
	dbPath := envCfg.SQLitePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(baseDir, "data", dbPath)
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	hierarchy := sqlite.NewHierarchyStore(db)

	// Engine state store (JSON on disk)
	states, err := local.NewStateStore(filepath.Join(baseDir, "data"))
	if err != nil {
		return fmt.Errorf("create state store: %w", err)
	}

	// Assistant providers
	registry, err := buildProviders(cfg, envCfg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	eng := engine.New(engine.Options{
		HierarchyStore: hierarchy,
		Providers:      registry,
		Triggers:       cfg.EffectiveTriggers(),
	})

	// Restore persisted engine state from the previous run
	if states.Exists() {
		state, err := states.Load()
		if err != nil {
			slog.Warn("failed to load persisted state, starting fresh", "error", err)
		} else {
			eng.Restore(state)
			slog.Info("restored engine state", "events", len(state.Events))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional Postgres event archive
	if envCfg.ArchiveURL != "" {
		arc, err := archive.New(ctx, envCfg.ArchiveURL, slog.Default())
		if err != nil {
			slog.Warn("event archive unavailable", "error", err)
		} else {
			defer arc.Close()
			eng.Events().AddSink(arc)
			slog.Info("event archive enabled")
		}
	}

	// Optional RabbitMQ activity ingestion
	if envCfg.RabbitMQURL != "" {
		conn, err := queue.NewConnection(envCfg.RabbitMQURL)
		if err != nil {
			slog.Warn("queue unavailable, HTTP ingestion only", "error", err)
		} else {
			defer conn.Close()
			consumer := queue.NewConsumer(conn, activityHandler(eng), queue.DefaultConsumerConfig())
			if err := consumer.Start(ctx); err != nil {
				slog.Warn("failed to start queue consumer", "error", err)
			} else {
				defer consumer.Stop()
				slog.Info("queue ingestion enabled", "queue", queue.ActivityQueueName)
			}

			publishPopupNotifications(ctx, eng, queue.NewProducer(conn))
		}
	}

	// Periodic trigger evaluation
	interval := time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go evaluateLoop(ctx, eng, interval)

	server := daemon.NewServer(daemon.ServerConfig{
		Config:    cfg,
		Engine:    eng,
		Hierarchy: hierarchy,
		States:    states,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := server.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

// buildProviders assembles the assistant registry. The scripted provider is
// always registered so the daemon works with no API key at all.
func buildProviders(cfg *config.LocalConfig, envCfg *config.Config) (*assistant.Registry, error) {
	registry := assistant.NewRegistry()
	registry.Register("scripted", assistant.NewScriptedProvider())

	claudeCfg := cfg.Assistant.Providers["claude"]
	apiKey := envCfg.AIAPIKey
	if apiKey == "" && claudeCfg != nil {
		apiKey = claudeCfg.APIKey
	}
	if claudeCfg != nil && claudeCfg.Enabled && apiKey != "" {
		model := claudeCfg.Model
		if envCfg.AIModel != "" {
			model = envCfg.AIModel
		}
		claude := assistant.NewClaudeProvider(assistant.ClaudeConfig{
			APIKey: apiKey,
			Model:  model,
		})
		resilientCfg := assistant.DefaultResilientConfig()
		resilientCfg.Logger = slog.Default()
		registry.Register("claude", assistant.NewResilientProvider(claude, resilientCfg))
	}

	defaultProvider := cfg.Assistant.DefaultProvider
	if envCfg.AIProvider != "" {
		defaultProvider = envCfg.AIProvider
	}
	if err := registry.SetDefault(defaultProvider); err != nil {
		slog.Warn("default provider unavailable, falling back to scripted",
			"provider", defaultProvider)
		if err := registry.SetDefault("scripted"); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// activityHandler adapts queue messages into engine activity.
func activityHandler(eng *engine.Engine) queue.ActivityHandler {
	return func(ctx context.Context, msg *queue.ActivityMessage) error {
		return eng.RecordActivity(ctx, msg.EventType,
			eventlog.EntityRef{Kind: msg.EntityKind, ID: msg.EntityID, Name: msg.EntityName},
			msg.Payload,
			eventlog.Metadata{Source: msg.Source, Importance: eventlog.Importance(msg.Importance)},
		)
	}
}

// publishPopupNotifications mirrors popup-level interventions onto the
// notification queue so lightweight clients can show them without polling.
func publishPopupNotifications(ctx context.Context, eng *engine.Engine, producer *queue.Producer) {
	eng.Dispatcher().Subscribe("intervention.fired", func(event domain.Event) {
		fired, ok := event.(domain.InterventionFiredEvent)
		if !ok || fired.Level != string(trigger.LevelPopup) {
			return
		}

		message := ""
		if t, ok := eng.Triggers().Get(fired.TriggerID); ok {
			message = t.Message
		}
		n := &queue.Notification{
			ID:             uuid.New(),
			InterventionID: fired.InterventionID,
			TriggerID:      fired.TriggerID,
			Message:        message,
			CreatedAt:      time.Now(),
		}
		if err := producer.PublishNotification(ctx, n); err != nil {
			slog.Warn("failed to publish notification", "error", err)
		}
	})
}

// evaluateLoop periodically checks whether any trigger condition holds.
func evaluateLoop(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.RefreshHealth(ctx); err != nil {
				slog.Warn("health refresh failed", "error", err)
				continue
			}
			if iv, fired := eng.EvaluateTriggers(ctx); fired {
				slog.Info("trigger fired", "trigger_id", iv.TriggerID, "level", iv.CurrentLevel)
			}
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(baseDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(baseDir, "logs", "questpulsed.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	// Also log to stderr for foreground mode
	multiHandler := &multiHandler{
		handlers: []slog.Handler{
			handler,
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}),
		},
	}

	slog.SetDefault(slog.New(multiHandler))

	return logFile, nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
