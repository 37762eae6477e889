package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"nexus/internal/config"
	"nexus/internal/embedding"
	"nexus/internal/logging"
	"nexus/internal/memory"
	"nexus/internal/metrics"
	"nexus/internal/provider"
	"nexus/internal/router"
	"nexus/internal/search"
	"nexus/internal/snapshot"
	"nexus/internal/store"
	"nexus/internal/workspace"
)

const defaultChatID = "local"

// app wires the full assistant: config, logging, index, memory tiers,
// snapshots and the router.
type app struct {
	cfg       *config.Config
	index     *store.Index
	snapshots *snapshot.Manager
	router    *router.Router
	log       *zap.Logger

	cancelBackground context.CancelFunc
}

func newApp() (*app, error) {
	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".nexus", "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
		cfg.Logging.Console = true
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = filepath.Join(cfg.DataDir, "logs")
	}

	// The only fatal startup condition: the data tree must exist.
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create data directories: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	log := logging.L("app")

	engine := embedding.NewEngine(cfg.Embedding)
	index, err := store.Open(filepath.Join(cfg.DataDir, "index.db"), engine, cfg.Memory.LongTermSize)
	if err != nil {
		return nil, fmt.Errorf("open semantic index: %w", err)
	}

	web := search.NewClient(cfg.Search.Endpoint, cfg.Search.MaxResults, cfg.SearchTimeout())
	mem := memory.NewContextStore(cfg.Memory, index, web)

	projectRoot := cfg.Snapshot.ProjectRoot
	if projectRoot == "" {
		projectRoot = cfg.Router.WorkspaceDir
	}
	snaps := snapshot.NewManager(cfg.DataDir, cfg.Snapshot.Retention, cfg.Snapshot.SystemBackups, projectRoot)

	prov := provider.NewClient(cfg.LLM, cfg.LLMTimeout())
	ws := workspace.NewManager(cfg.Router.WorkspaceDir)

	rt := router.New(cfg.Router, mem, snaps, prov, ws, cfg.Memory.ShortTermSize, cfg.CommandTTL())

	a := &app{
		cfg:       cfg,
		index:     index,
		snapshots: snaps,
		router:    rt,
		log:       log,
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel

	if cfg.Metrics.Enabled {
		go metrics.Serve(bgCtx, cfg.Metrics.Listen)
	}

	// Log-level changes in the config file apply without a restart.
	if _, err := os.Stat(path); err == nil {
		if werr := config.Watch(bgCtx, path, func(c *config.Config) {
			logging.SetLevel(c.Logging.Level)
		}); werr != nil {
			log.Warn("config watch unavailable", zap.Error(werr))
		}
	}

	log.Info("nexus started",
		zap.String("data_dir", cfg.DataDir),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("embedding", engine.Name()))
	return a, nil
}

func (a *app) Close() {
	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.log.Warn("index close failed", zap.Error(err))
		}
	}
}
