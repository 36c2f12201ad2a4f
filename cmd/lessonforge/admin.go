package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dusk-indust/lessonforge/internal/auth"
	"github.com/dusk-indust/lessonforge/internal/logging"
	"github.com/dusk-indust/lessonforge/internal/mcptools"
	"github.com/dusk-indust/lessonforge/internal/store"
)

type MigrateCmd struct {
	AppFlags
	DSN  string `long:"dsn" description:"PostgreSQL DSN, overrides store.dsn"`
	Args struct {
		Direction string `positional-arg-name:"direction" description:"up (default) or down"`
	} `positional-args:"yes"`
}

func (c *MigrateCmd) Execute([]string) error {
	cfg, err := loadConfig(c.AppFlags)
	if err != nil {
		return err
	}
	logger, flush, err := logging.New(cfg.Log, cfg.Rollbar, version)
	if err != nil {
		return err
	}
	defer flush()

	dsn := cfg.Store.DSN
	if c.DSN != "" {
		dsn = c.DSN
	}
	if dsn == "" {
		return fmt.Errorf("migrate: no DSN; set store.dsn or pass --dsn")
	}
	var dir store.MigrateDirection
	switch c.Args.Direction {
	case "", "up":
		c.Args.Direction = "up"
		dir = store.MigrateUp
	case "down":
		dir = store.MigrateDown
	default:
		return fmt.Errorf("migrate: unknown direction %q", c.Args.Direction)
	}
	if err := store.Migrate(context.Background(), dsn, dir, logger); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "migrations applied (%s)\n", c.Args.Direction)
	return nil
}

type TokenCmd struct {
	AppFlags
	UserFlag
	Name string        `long:"name" description:"display name claim"`
	TTL  time.Duration `long:"ttl" description:"token lifetime, overrides auth.tokenTTL"`
}

func (c *TokenCmd) Execute([]string) error {
	cfg, err := loadConfig(c.AppFlags)
	if err != nil {
		return err
	}
	ttl := cfg.Auth.TokenTTL
	if c.TTL > 0 {
		ttl = c.TTL
	}
	iss, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
	if err != nil {
		return err
	}
	tok, err := iss.Issue(c.User, c.Name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, tok)
	return err
}

type MCPCmd struct {
	AppFlags
	UserFlag
	HTTP string `long:"http" description:"serve streamable HTTP on this address instead of stdio"`
}

func (c *MCPCmd) Execute([]string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, c.AppFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	operator := auth.Static{UserID: c.User}
	assessments, planner, err := a.orchestrators(operator)
	if err != nil {
		return err
	}
	defer planner.Wait()
	defer assessments.Wait()

	server := mcptools.NewServer(mcptools.NewService(assessments, planner, a.store, operator, a.logger))
	if c.HTTP != "" {
		return mcptools.RunHTTP(ctx, server, c.HTTP)
	}
	return mcptools.RunStdio(ctx, server)
}
