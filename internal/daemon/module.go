package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/imcoach/internal/api"
	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/chatdb"
	"github.com/matheus3301/imcoach/internal/coach"
	"github.com/matheus3301/imcoach/internal/config"
	"github.com/matheus3301/imcoach/internal/imessage"
	"github.com/matheus3301/imcoach/internal/llm"
	"github.com/matheus3301/imcoach/internal/lock"
	"github.com/matheus3301/imcoach/internal/logging"
	"github.com/matheus3301/imcoach/internal/outbox"
	"github.com/matheus3301/imcoach/internal/profile"
	"github.com/matheus3301/imcoach/internal/status"
	"github.com/matheus3301/imcoach/internal/store"
	"github.com/matheus3301/imcoach/internal/watch"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  config.Config
	Debug   bool

	// Optional overrides for testing; nil or empty means the real thing.
	SocketPath string
	Logger     *zap.Logger
	Generator  llm.Generator
	Transport  outbox.TextSender
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideChatDB,
			provideGenerator,
			provideTransport,
			provideSender,
			provideDispatcher,
			provideWatcher,
			provideCoachService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Debug)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so coach.db is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.AppDBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result := db.Schema()
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideChatDB(p Params, logger *zap.Logger) (*chatdb.DB, error) {
	path := p.Config.ChatDB
	if path == "" {
		path = chatdb.DefaultPath()
	}
	db, err := chatdb.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Info("message store opened", zap.String("path", path))
	return db, nil
}

// provideGenerator never fails: without a usable provider every coaching
// request gets the fallback text.
func provideGenerator(p Params, logger *zap.Logger) llm.Generator {
	if p.Generator != nil {
		return p.Generator
	}
	gen, err := llm.New(context.Background(), llm.Config{
		Provider: p.Config.LLM.Provider,
		Model:    p.Config.LLM.Model,
		APIKey:   p.Config.LLM.APIKey,
		BaseURL:  p.Config.LLM.BaseURL,
	})
	if err != nil {
		logger.Warn("text generation unavailable, coaching will use the fallback", zap.Error(err))
		return nil
	}
	logger.Info("text generation ready", zap.String("provider", p.Config.LLM.Provider), zap.String("model", p.Config.LLM.Model))
	return gen
}

func provideTransport(p Params, logger *zap.Logger) outbox.TextSender {
	if p.Transport != nil {
		return p.Transport
	}
	return imessage.NewSender(logger)
}

func provideSender(db *store.DB, transport outbox.TextSender, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, transport, b, logger)
}

func identity(cfg config.Config) coach.Identity {
	return coach.Identity{UserID: cfg.UserID, AgentID: cfg.AgentID}
}

func provideDispatcher(p Params, sender *outbox.Sender, gen llm.Generator, b *bus.Bus, logger *zap.Logger) *coach.Dispatcher {
	cfg := p.Config
	return coach.NewDispatcher(
		coach.Options{
			Identity: identity(cfg),
			Prompt: coach.PromptOptions{
				HistoryWindow: cfg.HistoryWindow,
				Temperature:   cfg.LLM.Temperature,
				MaxTokens:     cfg.LLM.MaxTokens,
			},
			MaxConcurrent: cfg.MaxConcurrent,
		},
		coach.NewSessions(coach.MatchMode(cfg.MatchMode)),
		coach.NewDedup(cfg.DedupCapacity),
		gen, sender, b, logger,
	)
}

func provideWatcher(p Params, src *chatdb.DB, db *store.DB, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *watch.Watcher {
	return watch.New(src, db, machine, b, logger, watch.Options{
		DBPath:             src.Path(),
		PollInterval:       p.Config.PollInterval,
		Resume:             p.Config.Resume,
		CheckpointSchedule: p.Config.CheckpointSchedule,
	})
}

func provideCoachService(p Params, machine *status.Machine, d *coach.Dispatcher, sender *outbox.Sender, db *store.DB, src *chatdb.DB, w *watch.Watcher, b *bus.Bus, logger *zap.Logger) *api.CoachService {
	return api.NewCoachService(api.Deps{
		Profile:    p.Profile,
		ChatDB:     src.Path(),
		Identity:   identity(p.Config),
		Machine:    machine,
		Dispatcher: d,
		Sender:     sender,
		DB:         db,
		Watcher:    w,
		Bus:        b,
		Logger:     logger,
	})
}

// ActivationHint tells the user how to start a session.
func ActivationHint(agentID string) string {
	return fmt.Sprintf("Message %s with \"coach me on <contact> - help me with X\"", agentID)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, w *watch.Watcher, d *coach.Dispatcher, src *chatdb.DB, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if err := w.Start(context.Background()); err != nil {
				_ = machine.TransitionWithDetail(status.Error, err.Error())
				srv.Stop(context.Background())
				return err
			}
			d.Start(context.Background(), w.Messages())
			srv.SetServing(true)

			logger.Info("coachd ready",
				zap.String("user_id", p.Config.UserID),
				zap.String("agent_id", p.Config.AgentID),
				zap.String("chat_db", src.Path()))
			logger.Info(ActivationHint(p.Config.AgentID))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.SetServing(false)
			// Stop the watcher first so no new messages are accepted; the
			// dispatcher then cancels whatever coaching is still in flight.
			w.Stop()
			d.Stop()
			srv.Stop(ctx)
			if err := src.Close(); err != nil {
				logger.Warn("error closing message store", zap.Error(err))
			}
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
