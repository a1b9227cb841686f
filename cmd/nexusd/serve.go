package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/mikesmullin/daemon-sub001/internal/allowlist"
	"github.com/mikesmullin/daemon-sub001/internal/approvalqueue"
	"github.com/mikesmullin/daemon-sub001/internal/config"
	"github.com/mikesmullin/daemon-sub001/internal/eventbus"
	"github.com/mikesmullin/daemon-sub001/internal/fsmengine"
	"github.com/mikesmullin/daemon-sub001/internal/mcpsup"
	"github.com/mikesmullin/daemon-sub001/internal/observer"
	"github.com/mikesmullin/daemon-sub001/internal/provider"
	"github.com/mikesmullin/daemon-sub001/internal/ptymgr"
	"github.com/mikesmullin/daemon-sub001/internal/sessionstore"
	"github.com/mikesmullin/daemon-sub001/internal/toolkit"
	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// runServe wires every component into a running daemon and blocks until
// ctx is canceled or SIGINT/SIGTERM arrives, then drains in the order
// spec.md's termination rule demands: PTY sessions first, MCP servers
// second, a final daemon:shutdown broadcast last.
func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}

	store, err := sessionstore.New(root, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	if err := store.RecoverCrashedFSMStates(); err != nil {
		logger.Error("recover crashed fsm states", "error", err)
	}

	channels := eventbus.NewChannelStore(root)
	bus := eventbus.New(channels, store, logger)

	ptys := ptymgr.NewManager(0, logger)

	evaluator, err := allowlist.Load(cfg.Tools.ShellAllowlistPath, logger)
	if err != nil {
		return fmt.Errorf("load shell allowlist: %w", err)
	}

	registry := toolkit.NewRegistry()
	registry.Register(toolkit.ShellTool{Timeout: cfg.Tools.PerToolTimeout})
	toolkit.RegisterPTYTools(registry, ptys)

	dispatcher := toolkit.NewDispatcher(registry, toolkit.ShellApprovalHook(evaluator.Evaluate), logger)
	dispatcher = dispatcher.WithResultGuard(toolkit.ResultGuard{Enabled: true, MaxChars: cfg.Tools.MaxResultChars})

	executor := toolkit.NewExecutor(dispatcher, toolkit.ExecutorConfig{
		Concurrency:    cfg.Tools.Concurrency,
		PerToolTimeout: cfg.Tools.PerToolTimeout,
		MaxAttempts:    cfg.Tools.MaxAttempts,
		RetryBackoff:   cfg.Tools.RetryBackoff,
	})

	supervisors := make([]*mcpsup.Supervisor, 0, len(cfg.MCPServers))
	for _, entry := range cfg.MCPServers {
		sup := mcpsup.NewSupervisor(entry.ToModel(), root, logger)
		if err := sup.EnsureStarted(ctx); err != nil {
			logger.Error("start mcp server", "server", entry.Name, "error", err)
			continue
		}
		sup.RegisterTools(registry)
		supervisors = append(supervisors, sup)
	}

	providers := provider.NewRegistry()
	for _, p := range cfg.Providers {
		backend := provider.NewHTTPProviderFromEnv(p.Name, p.BaseURL, p.APIKeyEnv, 0)
		switch {
		case p.Fallback:
			providers.SetFallback(backend)
		case p.Prefix != "":
			providers.RegisterPrefix(p.Prefix, backend)
		case p.Pattern != "":
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return fmt.Errorf("provider %q: compile pattern: %w", p.Name, err)
			}
			providers.RegisterPattern(re, backend)
		default:
			providers.Register(backend)
		}
	}

	approvals := approvalqueue.New()

	metrics := observer.NewMetrics(nil)
	tracerProvider, shutdownTracer := observer.NewTracerProvider(observer.TraceConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	}, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutdown tracer provider", "error", err)
		}
	}()
	tracer := observer.NewTracer(tracerProvider, cfg.Tracing.ServiceName)

	engine := fsmengine.New(fsmengine.Dependencies{
		Store:      store,
		Tools:      registry,
		Dispatcher: dispatcher,
		Executor:   executor,
		Providers:  providers,
		Approvals:  approvals,
		Bus:        bus,
		Metrics:    metrics,
		Tracer:     tracer,
	}, fsmengine.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		Mode:         schedulerMode(cfg.Scheduler.Mode),
		ApprovalTTL:  cfg.Scheduler.ApprovalTTL,
		Logger:       logger,
	})

	gateway := observer.NewGateway(bus, logger)
	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port))
	httpServer := &http.Server{Addr: addr, Handler: gateway.Handler()}

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("observer gateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrs <- err
			return
		}
		serverErrs <- nil
	}()

	engineErrs := make(chan error, 1)
	go func() { engineErrs <- engine.Run(ctx) }()

	var runErr error
	engineDone := false
	select {
	case <-ctx.Done():
	case err := <-serverErrs:
		runErr = err
		stop()
	case err := <-engineErrs:
		engineDone = true
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		stop()
	}

	shutdownDaemon(ptys, supervisors, bus, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown observer gateway", "error", err)
	}

	if !engineDone {
		<-engineErrs
	}
	return runErr
}

// shutdownDaemon implements spec.md's termination ordering: PTY sessions
// force-closed first, then every MCP subprocess stopped, then a final
// broadcast so attached observers see the daemon going away.
func shutdownDaemon(ptys *ptymgr.Manager, supervisors []*mcpsup.Supervisor, bus *eventbus.Bus, logger *slog.Logger) {
	ptys.CloseAll()
	for _, sup := range supervisors {
		sup.Stop()
	}
	bus.Publish(model.Event{
		Type:      model.EventDaemonShutdown,
		Timestamp: time.Now().UTC(),
	})
	logger.Info("daemon shutdown complete")
}

func schedulerMode(mode string) fsmengine.Mode {
	if mode == "permissive" {
		return fsmengine.ModePermissive
	}
	return fsmengine.ModeStrict
}
