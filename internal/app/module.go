// Package app composes the client from its parts with fx: one session owns
// one store, one bus, one presence lease and one TUI shell.
package app

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Atropina/Falai-Arizona/internal/auth"
	"github.com/Atropina/Falai-Arizona/internal/bus"
	"github.com/Atropina/Falai-Arizona/internal/config"
	"github.com/Atropina/Falai-Arizona/internal/lock"
	"github.com/Atropina/Falai-Arizona/internal/logging"
	"github.com/Atropina/Falai-Arizona/internal/presence"
	"github.com/Atropina/Falai-Arizona/internal/session"
	"github.com/Atropina/Falai-Arizona/internal/status"
	"github.com/Atropina/Falai-Arizona/internal/store"
	"github.com/Atropina/Falai-Arizona/internal/tui"
	"github.com/Atropina/Falai-Arizona/internal/upload"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideStore,
			provideAuth,
			provideLease,
			provideTracker,
			provideStorage,
			provideUploader,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	path := session.ConfigPath()
	cfg, err := config.Load(path)
	if os.IsNotExist(err) {
		cfg = config.Default()
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
		logger.Info("wrote default config", zap.String("path", path))
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath, b, logger)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAuth(p Params, db *store.DB, logger *zap.Logger) *auth.Provider {
	return auth.NewProvider(db, logger, session.IdentityPath(p.SessionName))
}

// provideLease selects the presence backend: redis when configured, the
// process-local table otherwise.
func provideLease(cfg *config.Config, logger *zap.Logger) (presence.Lease, error) {
	if cfg.Presence.RedisAddr == "" {
		logger.Info("presence using in-process lease")
		return presence.NewMemoryLease(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lease, err := presence.NewRedisLease(ctx, cfg.Presence.RedisAddr, cfg.Presence.RedisDB)
	if err != nil {
		return nil, err
	}
	logger.Info("presence using redis lease", zap.String("addr", cfg.Presence.RedisAddr))
	return lease, nil
}

func provideTracker(db *store.DB, lease presence.Lease, cfg *config.Config, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(db, lease, logger, cfg.Presence.TTL(), cfg.Presence.Heartbeat())
}

// provideStorage selects the media backend per config.
func provideStorage(p Params, cfg *config.Config, logger *zap.Logger) (upload.ObjectStorage, error) {
	if cfg.Storage.Backend == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("media using s3 storage", zap.String("bucket", cfg.Storage.Bucket))
		return upload.NewS3Storage(ctx, cfg.Storage)
	}
	dir := cfg.Storage.LocalPath
	if dir == "" {
		dir = session.MediaDir(p.SessionName)
	}
	logger.Info("media using local storage", zap.String("dir", dir))
	return upload.NewLocalStorage(dir)
}

func provideUploader(db *store.DB, storage upload.ObjectStorage, b *bus.Bus, logger *zap.Logger) *upload.Coordinator {
	return upload.NewCoordinator(db, storage, b, logger)
}

func provideApp(p Params, db *store.DB, b *bus.Bus, m *status.Machine, ap *auth.Provider,
	tr *presence.Tracker, up *upload.Coordinator, cfg *config.Config, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		DB:       db,
		Bus:      b,
		Machine:  m,
		Auth:     ap,
		Tracker:  tr,
		Uploader: up,
		Config:   cfg,
		Logger:   logger,
		Session:  p.SessionName,
	})
}

func registerLifecycle(lc fx.Lifecycle, sd fx.Shutdowner, app *tui.App, tr *presence.Tracker,
	db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := app.Run(); err != nil {
					logger.Error("tui exited", zap.Error(err))
				}
				_ = sd.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			app.Stop()
			if err := tr.Leave(ctx); err != nil {
				logger.Warn("presence leave failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("store close failed", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
