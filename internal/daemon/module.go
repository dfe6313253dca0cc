package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/config"
	"github.com/matheus3301/roomchat/internal/connectivity"
	"github.com/matheus3301/roomchat/internal/conversation"
	"github.com/matheus3301/roomchat/internal/lock"
	"github.com/matheus3301/roomchat/internal/logging"
	"github.com/matheus3301/roomchat/internal/metrics"
	"github.com/matheus3301/roomchat/internal/outbox"
	"github.com/matheus3301/roomchat/internal/realtime"
	"github.com/matheus3301/roomchat/internal/rest"
	"github.com/matheus3301/roomchat/internal/rooms"
	"github.com/matheus3301/roomchat/internal/session"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// Params holds the resolved profile and command-line overrides passed to
// the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
	ServerURL   string // overrides server_url when set
	Username    string // overrides username when set
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideProfile,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRestClient,
			provideChannel,
			provideProber,
			provideSyncEngine,
			provideFlusher,
			provideManager,
			provideRooms,
			provideSessionService,
			provideChatsService,
			provideMessagesService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideProfile(p Params) (*config.Profile, error) {
	if err := session.ValidateName(p.ProfileName); err != nil {
		return nil, err
	}
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	prof, err := config.LoadProfile(session.ProfileConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	if p.ServerURL != "" {
		prof.ServerURL = p.ServerURL
	}
	if p.Username != "" {
		prof.Username = p.Username
	}
	return prof, prof.Validate()
}

func provideLogger(p Params, prof *config.Profile) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.ProfileName), p.ProfileName, prof.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(session.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same
// database.
func provideStore(p Params, prof *config.Profile, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetLogger(logger.Named("store"))
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
	if prof.ResetOnStart {
		if err := db.Reset(); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("store wiped on start")
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRestClient(prof *config.Profile, logger *zap.Logger) (*rest.Client, error) {
	return rest.New(prof.ServerURL, prof.Username, prof.HTTPTimeout.Std(), logger)
}

func provideChannel(prof *config.Profile, b *bus.Bus, logger *zap.Logger) *realtime.Channel {
	opts := realtime.DefaultOptions(prof.ServerURL)
	opts.ReconnectAttempts = prof.ReconnectAttempts
	opts.ReconnectDelay = prof.ReconnectDelay.Std()
	opts.ConnectTimeout = prof.ConnectTimeout.Std()
	return realtime.New(opts, nil, b, logger)
}

func provideProber(prof *config.Profile, b *bus.Bus, logger *zap.Logger) (*connectivity.Prober, error) {
	return connectivity.NewProber(prof.ServerURL, prof.ProbeInterval.Std(), b, logger)
}

func provideSyncEngine(prof *config.Profile, db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	e := intsync.NewEngine(db, b, logger)
	e.SetUser(prof.Username)
	return e
}

func provideFlusher(db *store.DB, ch *realtime.Channel, b *bus.Bus, logger *zap.Logger) *outbox.Flusher {
	return outbox.NewFlusher(db, ch, b, logger)
}

func provideManager(prof *config.Profile, db *store.DB, engine *intsync.Engine, ch *realtime.Channel, prober *connectivity.Prober, rc *rest.Client, f *outbox.Flusher, b *bus.Bus, logger *zap.Logger) *conversation.Manager {
	return conversation.NewManager(conversation.Config{
		DB:           db,
		Engine:       engine,
		Channel:      ch,
		Monitor:      prober,
		History:      rc,
		Flusher:      f,
		Bus:          b,
		HistoryLimit: prof.HistoryLimit,
		Logger:       logger,
	})
}

func provideRooms(db *store.DB, rc *rest.Client, engine *intsync.Engine, m *conversation.Manager, logger *zap.Logger) *rooms.Directory {
	return rooms.New(db, rc, engine, m, logger)
}

func provideSessionService(p Params, prof *config.Profile, ch *realtime.Channel, prober *connectivity.Prober, engine *intsync.Engine, db *store.DB, dir *rooms.Directory, b *bus.Bus, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(api.SessionConfig{
		Profile:   p.ProfileName,
		ServerURL: prof.ServerURL,
		Channel:   ch,
		Monitor:   prober,
		Engine:    engine,
		DB:        db,
		Rooms:     dir,
		Bus:       b,
		SaveUsername: func(username string) error {
			prof.Username = username
			return config.SaveProfile(session.ProfileConfigPath(p.ProfileName), prof)
		},
		Logger: logger,
	})
}

func provideChatsService(db *store.DB, dir *rooms.Directory, m *conversation.Manager) *api.ChatsService {
	return api.NewChatsService(db, dir, m)
}

func provideMessagesService(db *store.DB, m *conversation.Manager) *api.MessagesService {
	return api.NewMessagesService(db, m)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Profile   *config.Profile
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Channel   *realtime.Channel
	Prober    *connectivity.Prober
	Engine    *intsync.Engine
	Manager   *conversation.Manager
	Logger    *zap.Logger
}

func registerLifecycle(lp lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	var metricsSrv *http.Server

	lp.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			metrics.Register()

			// Start sync engine (subscribes to realtime.* bus events).
			lp.Engine.Start(ctx)

			go lp.Prober.Run(ctx)

			// Start gRPC server in background.
			go func() {
				if err := lp.Server.Start(); err != nil {
					lp.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if addr := lp.Profile.MetricsAddr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						lp.Logger.Error("metrics server error", zap.Error(err))
					}
				}()
				lp.Logger.Info("metrics listening", zap.String("addr", addr))
			}

			if lp.Profile.Username != "" {
				lp.Channel.Connect(lp.Profile.Username)
			} else {
				lp.Logger.Info("no username configured, login required")
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			lp.Manager.Close()
			lp.Channel.Disconnect()
			cancel()
			lp.Engine.Stop()
			lp.Server.Stop(stopCtx)
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(stopCtx)
			}
			if err := lp.DB.Close(); err != nil {
				lp.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				lp.Logger.Warn("error releasing lock", zap.Error(err))
			}
			lp.Logger.Info("daemon stopped")
			return nil
		},
	})
}
