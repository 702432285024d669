package bootstrap

import (
	"context"
	"fmt"
	"time"

	"procsight/internal/config"
	"procsight/internal/controller"
	"procsight/internal/handler"
	"procsight/internal/monitor"
	"procsight/internal/pkg/logger"
	"procsight/internal/service"
	"procsight/internal/source/procfs"
	"procsight/internal/websocket"
	"procsight/pkg/bus"
	"procsight/pkg/chat"
	"procsight/pkg/kv"
	"procsight/pkg/kv/memory"
	kvredis "procsight/pkg/kv/redis"
	"procsight/pkg/kv/sqlite"
	"procsight/pkg/llm"
	pktNats "procsight/pkg/nats"
	"procsight/pkg/prompt"
	"procsight/pkg/scheduler"
	"procsight/pkg/session"
	"procsight/pkg/telemetry"

	"github.com/redis/go-redis/v9"
)

type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger

	// Controllers
	TelemetryController controller.ITelemetryController
	SessionController   controller.ISessionController
	ChatController      controller.IChatController
	LogController       controller.ILogController

	// WebSockets
	StreamHandler *handler.StreamHandler
	WebSocketHub  *websocket.Hub

	// Core pipeline (exposed for the CLI)
	Monitor        *monitor.Monitor
	SessionManager *session.Manager // nil on the remote backend
	Chat           *chat.Controller
	Relay          *service.RelayService
	Publisher      *pktNats.Publisher // nil unless the relay is enabled

	traceLogger *logger.ZapLogger
	closers     []func() error
}

func NewContainer(cfg *config.Config) (*Container, error) {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	traceLogger := logger.NewIsolatedLogger(cfg.App.TraceLogPath)

	c := &Container{
		Config:      cfg,
		Logger:      sysLogger,
		traceLogger: traceLogger,
	}

	// 1. Shared Redis (kv driver and hub relay)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		rdb = kvredis.NewClient(cfg.App.RedisURL)
		c.closers = append(c.closers, rdb.Close)
	}

	// 2. Persistence collaborator
	store, err := c.newStore(rdb)
	if err != nil {
		return nil, err
	}

	// 3. Telemetry pipeline
	formatter := telemetry.NewFormatter(time.Now)
	logStore := telemetry.NewStore(store, formatter, cfg.Telemetry.MaxRows, sysLogger)
	source := procfs.New(cfg.Telemetry.ProcRoot, cfg.Telemetry.CaptureInterval, sysLogger)
	updates := bus.New[*monitor.Update]("telemetry", sysLogger)
	sched := scheduler.New(sysLogger)

	// 4. AI backend
	instructions := cfg.Ai.SystemPrompt
	if instructions == "" {
		instructions = prompt.DefaultInstructions
	}

	backendOpts := BackendOptions(cfg, instructions)
	backend, manager, err := chat.NewBackend(backendOpts, store, sysLogger, traceLogger)
	if err != nil {
		return nil, err
	}
	model := backendOpts.Model()

	var refresher monitor.Refresher
	if manager != nil {
		c.SessionManager = manager
		refresher = manager
	}

	opts := monitor.Options{
		CaptureInterval: cfg.Telemetry.CaptureInterval,
		CompactInterval: cfg.Telemetry.CompactInterval,
		RefreshInterval: cfg.Ai.RefreshInterval,
		MaxRows:         cfg.Telemetry.MaxRows,
	}
	c.Monitor = monitor.New(source, logStore, formatter, updates, sched, refresher, opts, sysLogger)

	policy := prompt.ParsePolicy(cfg.Telemetry.PromptFilter, cfg.Telemetry.TopN, cfg.Telemetry.CPUThreshold)
	assembler := prompt.NewAssembler(instructions, c.Monitor, policy)
	c.Chat = chat.NewController(backend, assembler, cfg.Ai.RetryInputLength, sysLogger, traceLogger)

	// 5. Live push and relay
	c.WebSocketHub = websocket.NewHub(rdb, sysLogger)
	if cfg.Telemetry.RelayEnabled && cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Error("Bootstrap", "NATS relay disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.Publisher = pub
		}
	}

	var statuses service.StatusSource
	if c.SessionManager != nil {
		statuses = c.SessionManager
	}
	var publisher service.EventPublisher
	if c.Publisher != nil {
		publisher = c.Publisher
	}
	c.Relay = service.NewRelayService(c.Monitor, statuses, c.WebSocketHub, publisher, sysLogger)

	// 6. Services & controllers
	telemetryService := service.NewTelemetryService(c.Monitor)
	c.TelemetryController = controller.NewTelemetryController(telemetryService)
	c.SessionController = controller.NewSessionController(service.NewSessionService(c.SessionManager, cfg.Ai.Backend, model))
	c.ChatController = controller.NewChatController(service.NewChatService(c.Chat))
	c.LogController = controller.NewLogController(service.NewLogService(sysLogger))
	c.StreamHandler = handler.NewStreamHandler(telemetryService, c.WebSocketHub, sysLogger)

	sysLogger.Info("Bootstrap", "Container ready", map[string]interface{}{
		"storage": cfg.Storage.Driver,
		"backend": cfg.Ai.Backend,
		"model":   model,
		"relay":   c.Publisher != nil,
	})
	return c, nil
}

func (c *Container) newStore(rdb *redis.Client) (kv.Store, error) {
	switch c.Config.Storage.Driver {
	case "sqlite":
		s, err := sqlite.New(c.Config.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("STORAGE_DRIVER=redis requires REDIS_URL")
		}
		return kvredis.NewStore(rdb, c.Config.Storage.RedisPrefix), nil
	default:
		return memory.NewStore(), nil
	}
}

// BackendOptions maps the AI config section onto a chat backend selection.
func BackendOptions(cfg *config.Config, instructions string) chat.BackendOptions {
	return chat.BackendOptions{
		Kind:          cfg.Ai.Backend,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		OllamaModel:   cfg.Ai.OllamaModel,
		Session:       SessionConfig(cfg, instructions),
		GeminiBaseURL: cfg.Ai.GeminiBaseURL,
		GeminiModel:   cfg.Ai.GeminiModel,
		GeminiModels:  cfg.Ai.GeminiModels,
		GeminiAPIKey:  cfg.Ai.GeminiAPIKey,
	}
}

// SessionConfig derives the local session settings from cfg.
func SessionConfig(cfg *config.Config, systemPrompt string) llm.SessionConfig {
	sc := session.DefaultConfig(systemPrompt)
	sc.Temperature = cfg.Ai.Temperature
	sc.TopK = cfg.Ai.TopK
	sc.MaxOutputTokens = cfg.Ai.MaxOutputTokens
	sc.TimeoutSeconds = cfg.Ai.TimeoutSeconds
	return session.Clamp(sc)
}

// Start begins monitoring, relaying and, on the local backend, the first
// session acquisition. The hub is run by the caller.
func (c *Container) Start(ctx context.Context) error {
	c.Relay.Start()
	if err := c.Monitor.Start(ctx); err != nil {
		c.Relay.Stop()
		return err
	}

	if c.SessionManager != nil {
		go func() {
			if err := c.SessionManager.Acquire(ctx); err != nil {
				c.Logger.Warn("Bootstrap", "Initial session acquisition failed", map[string]interface{}{"error": err.Error()})
			}
		}()
	}
	return nil
}

// ApplyConfig re-applies hot-reloadable settings. Sampling changes restart the local session.
func (c *Container) ApplyConfig(ctx context.Context, cfg *config.Config) {
	if c.SessionManager == nil {
		return
	}
	current := c.SessionManager.Config()
	next := SessionConfig(cfg, current.SystemPrompt)
	if next == current {
		return
	}
	c.Logger.Info("Bootstrap", "AI settings changed, restarting session", map[string]interface{}{
		"temperature": next.Temperature,
		"top_k":       next.TopK,
	})
	if err := c.SessionManager.Reconfigure(ctx, next); err != nil {
		c.Logger.Warn("Bootstrap", "Session restart after reload failed", map[string]interface{}{"error": err.Error()})
	}
}

// Close stops the pipeline and releases every resource, in reverse order of creation.
func (c *Container) Close(ctx context.Context) {
	c.Relay.Stop()
	c.Monitor.Stop()
	c.Chat.Dispose(ctx)
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("Bootstrap", "Close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	c.traceLogger.Sync()
	c.Logger.Sync()
}
