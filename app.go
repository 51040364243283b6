package main

import (
	"fmt"

	"go_batchgen/core"
	"go_batchgen/credentials"
	"go_batchgen/imagegen"
	"go_batchgen/logging"
	"go_batchgen/settings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds what every command needs: the effective configuration, the
// settings document backing the token pool, and the logger.
type app struct {
	cfg    *core.Config
	store  *settings.Store
	doc    *settings.Settings
	pool   *credentials.Pool
	logger *logging.Logger
}

// newApp loads env configuration, overlays the settings file, builds the
// logger and the credential pool. Pool mutations are written back to the
// settings file.
func newApp() (*app, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, err
	}

	store := settings.NewStore(cfg.SettingsPath)
	doc, err := store.Load()
	if err != nil {
		return nil, err
	}
	doc.ApplyTo(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	defaultLevel := zapcore.InfoLevel
	if cfg.DevMode {
		defaultLevel = zapcore.DebugLevel
	}
	logger, err := logging.NewLoggerWithLevel(cfg.DevMode, cfg.LogFile,
		logging.ParseLogLevelString(cfg.LogLevel, defaultLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool := credentials.NewPool(doc.Credentials())
	pool.OnChange(store.PersistPool(doc, func(err error) {
		logger.Error("failed to persist token list", zap.Error(err))
	}))

	logger.Debug("configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("prompts_file", cfg.PromptsFile),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("workers", cfg.WorkerCount),
		zap.Duration("delay", cfg.RequestDelay),
		zap.Int("tokens", pool.Len()),
		zap.Bool("history", cfg.HistoryDBPath != ""),
	)

	return &app{cfg: cfg, store: store, doc: doc, pool: pool, logger: logger}, nil
}

// newClient builds the remote client selected by IMAGE_PROVIDER.
func (a *app) newClient() (imagegen.Client, error) {
	switch a.cfg.Provider {
	case core.ProviderOpenAI:
		client, err := imagegen.NewOpenAIClient(a.cfg)
		if err != nil {
			return nil, err
		}
		// drop per-token handles for removed tokens
		a.pool.OnChange(client.Rebuild)
		return client, nil
	default:
		return imagegen.NewImageFXClientFromConfig(a.cfg), nil
	}
}

// endpoint is the URL `check` probes for reachability.
func (a *app) endpoint() string {
	if a.cfg.Provider == core.ProviderOpenAI {
		return a.cfg.OpenAIBaseURL
	}
	return a.cfg.ImageFXURL
}

func (a *app) close() {
	if a.logger != nil {
		a.logger.Sync()
	}
}
