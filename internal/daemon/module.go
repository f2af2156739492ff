// Package daemon composes the sync core into a runnable process: local
// store, pending queue, connectivity monitor, sync runner and the service
// facade, wired together with fx.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"chatsync/internal/bus"
	"chatsync/internal/config"
	"chatsync/internal/connectivity"
	"chatsync/internal/lock"
	"chatsync/internal/logging"
	"chatsync/internal/remote"
	"chatsync/internal/service"
	"chatsync/internal/store"
	intsync "chatsync/internal/sync"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Core is the surface an embedding front end consumes: local-first reads
// and writes through the services, sync status and manual sync through the
// coordinator, reachability through the monitor.
type Core struct {
	Chats    *service.ChatService
	Messages *service.MessageService
	Users    *service.UserService
	Sync     *intsync.Coordinator
	Monitor  *connectivity.Monitor
}

// NewCore groups the services behind one handle.
func NewCore(chats *service.ChatService, msgs *service.MessageService, users *service.UserService, c *intsync.Coordinator, monitor *connectivity.Monitor) *Core {
	return &Core{Chats: chats, Messages: msgs, Users: users, Sync: c, Monitor: monitor}
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRemote,
			provideMonitor,
			provideCoordinator,
			provideRunner,
			provideChatService,
			provideMessageService,
			provideUserService,
			NewCore,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath(), p.Config.CurrentUserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.Config.DataDir))
	l, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Config.DBPath()
	db, err := store.Open(dbPath)
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

func provideRemote(p Params) remote.Authority {
	return remote.NewMock(time.Duration(p.Config.RemoteLatencyMs) * time.Millisecond)
}

func provideMonitor(b *bus.Bus) *connectivity.Monitor {
	return connectivity.NewMonitor(b)
}

func provideCoordinator(p Params, db *store.DB, auth remote.Authority, monitor *connectivity.Monitor, b *bus.Bus, logger *zap.Logger) (*intsync.Coordinator, error) {
	return intsync.NewCoordinator(db, auth, monitor, b, logger, intsync.Options{
		CallTimeout: p.Config.RemoteCallTimeout(),
	})
}

func provideRunner(p Params, c *intsync.Coordinator, monitor *connectivity.Monitor, b *bus.Bus, logger *zap.Logger) *intsync.Runner {
	return intsync.NewRunner(c, monitor, b, logger, p.Config.SyncInterval())
}

func provideChatService(db *store.DB, b *bus.Bus, logger *zap.Logger) *service.ChatService {
	return service.NewChatService(db, b, logger)
}

func provideMessageService(db *store.DB, b *bus.Bus, logger *zap.Logger) *service.MessageService {
	return service.NewMessageService(db, b, logger)
}

func provideUserService(db *store.DB, b *bus.Bus, logger *zap.Logger) *service.UserService {
	return service.NewUserService(db, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, core *Core, runner *intsync.Runner, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Runner first so the initial connectivity transition is seen.
			runner.Start(context.Background())
			core.Monitor.SetOnline(p.Config.StartOnline)
			logger.Info("daemon started",
				zap.String("user", p.Config.CurrentUserID),
				zap.Bool("online", p.Config.StartOnline))
			return nil
		},
		OnStop: func(_ context.Context) error {
			runner.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
