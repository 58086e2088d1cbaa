package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dormitory-housing-backend/config"
	"dormitory-housing-backend/internal/allocation"
	"dormitory-housing-backend/internal/db"
	"dormitory-housing-backend/internal/lock"
	"dormitory-housing-backend/internal/logging"
	"dormitory-housing-backend/internal/metrics"
	"dormitory-housing-backend/internal/registry"
	"dormitory-housing-backend/internal/structure"
	"dormitory-housing-backend/internal/transfer"
)

const defaultConfigPath = "./config/config.yaml"

// app is every component wired against one database.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	metrics   *metrics.Metrics
	structure *structure.Service
	apps      *registry.Service
	engine    *allocation.Engine
	transfer  *transfer.Service
}

// loadConfig resolves the config path from the flag, then CONFIG_PATH, then
// the default location. Only the default location may be missing.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		return cfg, path, nil
	}

	cfg, err := config.Load(defaultConfigPath)
	switch {
	case err == nil:
		return cfg, defaultConfigPath, nil
	case errors.Is(err, fs.ErrNotExist):
		return config.Default(), "", nil
	default:
		return nil, "", fmt.Errorf("failed to load configuration from %s: %w", defaultConfigPath, err)
	}
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if path == "" {
		logger.Info("no configuration file found, using defaults")
	} else {
		logger.Info("configuration loaded", zap.String("path", path))
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	locks := lock.NewManager(cfg.Allocation.LockTimeout)
	apps := registry.NewService(gormDB, locks, logger)

	return &app{
		cfg:       cfg,
		log:       logger,
		db:        gormDB,
		metrics:   m,
		structure: structure.NewService(gormDB, locks, logger),
		apps:      apps,
		engine:    allocation.NewEngine(gormDB, locks, apps, m, logger),
		transfer:  transfer.NewService(gormDB, locks, m, logger),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.log.Sync()
}
