// Package app provides the application lifecycle: configuration, logging,
// the engine, and the native protocol server wired together.
package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/arkilian/minicql/internal/config"
	"github.com/arkilian/minicql/internal/engine"
	"github.com/arkilian/minicql/internal/exec"
	"github.com/arkilian/minicql/internal/server"
	"github.com/arkilian/minicql/internal/snapshot"
)

// App owns the server process: one engine, one listener, one shutdown
// manager.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	engine   *engine.Engine
	server   *server.Server
	shutdown *server.ShutdownManager

	mu       sync.Mutex
	running  bool
	listener net.Listener
	serveErr chan error
}

// New validates the configuration and builds the application. Nothing
// listens until Start.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	eng, err := engine.New(logger, exec.NodeInfo{
		ClusterName: cfg.ClusterName,
		Address:     listenHost(cfg.Listener.Addr),
		HostID:      [16]byte(uuid.New()),
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	sm := server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: cfg.Shutdown.ShutdownTimeout,
		DrainTimeout:    cfg.Shutdown.DrainTimeout,
	})
	srv := server.New(cfg.Listener, eng, logger, sm)
	// Closers run LIFO: the listener and connections close first, the
	// logger flushes last.
	sm.RegisterCloser(server.CloserFunc(func() error {
		logger.Sync()
		return nil
	}))
	sm.RegisterCloser(srv)

	return &App{
		cfg:      cfg,
		logger:   logger,
		engine:   eng,
		server:   srv,
		shutdown: sm,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Addr returns the bound listener address, empty before Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Start binds the listener and begins serving in the background.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	ln, err := net.Listen("tcp", a.cfg.Listener.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Listener.Addr, err)
	}
	a.listener = ln
	a.running = true
	a.serveErr = make(chan error, 1)
	go func() { a.serveErr <- a.server.Serve(ln) }()

	a.logger.Info("started",
		zap.String("cluster_name", a.cfg.ClusterName),
		zap.String("addr", ln.Addr().String()))
	return nil
}

// Run starts the app and blocks until a termination signal or context
// cancellation, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	return a.shutdown.ListenForSignals(ctx)
}

// Stop shuts the server down, draining in-flight requests.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	serveErr := a.serveErr
	a.mu.Unlock()

	if err := a.shutdown.Shutdown(ctx, "stop requested"); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteSnapshot serializes the engine state into the snapshot directory
// and returns the file path.
func (a *App) WriteSnapshot(name string) (string, error) {
	if name == "" {
		name = fmt.Sprintf("state-%s.yaml", time.Now().UTC().Format("20060102T150405Z"))
	}
	path := filepath.Join(a.cfg.Snapshot.Dir, name)
	ex := a.engine.Executor()
	if err := snapshot.WriteFile(ex.Catalog(), ex.Store(), path); err != nil {
		return "", err
	}
	a.logger.Info("snapshot written", zap.String("path", path))
	return path, nil
}

// buildLogger constructs a zap logger from the logging configuration.
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// listenHost extracts the host part of a listen address for the
// system.local broadcast address, defaulting to loopback.
func listenHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1"
	}
	return host
}
