package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/config"
	"github.com/dusk-indust/lessonforge/internal/logging"
	"github.com/dusk-indust/lessonforge/internal/notify"
	"github.com/dusk-indust/lessonforge/internal/orchestrator"
	"github.com/dusk-indust/lessonforge/internal/provider"
	"github.com/dusk-indust/lessonforge/internal/store"
)

// AppFlags are shared by every command that loads the configuration.
type AppFlags struct {
	Dir      string `short:"d" long:"dir" default:"." description:"directory holding lessonforge.yml and .env"`
	LogLevel string `long:"log-level" description:"override the configured log level"`
}

// UserFlag selects the local operator for commands that act as a user.
type UserFlag struct {
	User string `short:"u" long:"user" default:"local" description:"user ID the records belong to"`
}

// app holds the collaborators built from the configuration.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	flush  func()
	store  store.Store
}

func loadConfig(f AppFlags) (*config.Config, error) {
	cfg, err := config.Load(f.Dir)
	if err != nil {
		return nil, err
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	return cfg, nil
}

// newApp loads the configuration, builds the logger and opens the record
// store. Inserts publish events when a broker is configured.
func newApp(ctx context.Context, f AppFlags) (*app, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	logger, flush, err := logging.New(cfg.Log, cfg.Rollbar, version)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		flush()
		return nil, err
	}

	var pub notify.Publisher = notify.Noop{}
	if cfg.Broker.URL != "" {
		p, err := notify.DialAMQP(cfg.Broker.URL, cfg.Broker.Exchange, logger)
		if err != nil {
			_ = st.Close()
			flush()
			return nil, err
		}
		pub = p
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		flush:  flush,
		store:  notify.Wrap(st, pub, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	a.flush()
}

func (a *app) orchestrators(authn auth.Authenticator) (*orchestrator.Orchestrator, *orchestrator.LessonPlanner, error) {
	p, err := provider.New(a.cfg.Provider, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return orchestrator.New(p, a.store, authn, a.logger),
		orchestrator.NewLessonPlanner(p, a.store, authn, a.logger),
		nil
}
