package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"
	"go.uber.org/zap"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/resources"
	"github.com/dusk-indust/lessonforge/internal/server"
)

type ServeCmd struct {
	AppFlags
	Addr     string `long:"addr" description:"listen address, overrides server.addr"`
	GopsAddr string `long:"gops" description:"gops agent address, overrides server.gopsAddr"`
	NoGops   bool   `long:"no-gops" description:"do not start the gops agent"`
}

func (c *ServeCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("serve: auth.jwtSecret (LESSONFORGE_AUTH_JWT_SECRET) is required")
	}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, a.logger)
	if err != nil {
		return err
	}

	if !c.NoGops {
		gopsAddr := cfg.Server.GopsAddr
		if c.GopsAddr != "" {
			gopsAddr = c.GopsAddr
		}
		if err := agent.Listen(agent.Options{Addr: gopsAddr}); err != nil {
			a.logger.Warn("gops agent not started", zap.Error(err))
		} else {
			defer agent.Close()
		}
	}

	assessments, planner, err := a.orchestrators(auth.ContextAuthenticator{})
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Assessments:    assessments,
		LessonPlans:    planner,
		Store:          a.store,
		Resources:      resources.NewHub(cfg.Objects.RootURL, a.store, a.logger),
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RunTTL:         cfg.Server.RunTTL,
		Logger:         a.logger,
	})

	addr := cfg.Server.Addr
	if c.Addr != "" {
		addr = c.Addr
	}
	return srv.Serve(ctx, addr)
}
