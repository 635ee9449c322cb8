package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/dukerupert/taskrunner/internal/config"
	"github.com/dukerupert/taskrunner/internal/database"
	"github.com/dukerupert/taskrunner/internal/logging"
	"github.com/dukerupert/taskrunner/internal/push"
	"github.com/dukerupert/taskrunner/internal/reminder"
	"github.com/dukerupert/taskrunner/internal/server"
)

// appContext is passed to every command's Run method.
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger
}

var CLI struct {
	Config string `help:"Path to a YAML config file. TASKRUNNER_* environment variables override it." type:"path" env:"TASKRUNNER_CONFIG"`

	Serve     ServeCmd     `cmd:"" help:"Run the HTTP server and the reminder scheduler." default:"1"`
	Tick      TickCmd      `cmd:"" help:"Run a single reminder tick and exit."`
	Migrate   MigrateCmd   `cmd:"" help:"Apply database migrations and print the schema version."`
	VapidKeys VapidKeysCmd `cmd:"" name:"vapid-keys" help:"Generate a VAPID key pair for web push."`
}

type ServeCmd struct{}

func (c *ServeCmd) Run(app *appContext) error {
	cfg, logger := app.cfg, app.logger

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(db, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Scheduler().Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer srv.Scheduler().Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("taskrunner listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type TickCmd struct {
	At string `help:"Evaluate as if the tick ran at this RFC 3339 time instead of now." placeholder:"TIME"`
}

func (c *TickCmd) Run(app *appContext) error {
	var opts []reminder.Option
	if c.At != "" {
		at, err := time.Parse(time.RFC3339, c.At)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		opts = append(opts, reminder.WithClock(func() time.Time { return at }))
	}

	db, err := database.Open(app.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(db, app.cfg, app.logger, opts...)
	if err != nil {
		return err
	}
	return srv.Scheduler().Tick(context.Background())
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *appContext) error {
	db, err := database.Open(app.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	v, err := database.Version(db)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d\n", v)
	return nil
}

type VapidKeysCmd struct{}

func (c *VapidKeysCmd) Run(app *appContext) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("TASKRUNNER_VAPID_PUBLIC_KEY=%s\n", pub)
	fmt.Printf("TASKRUNNER_VAPID_PRIVATE_KEY=%s\n", priv)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("taskrunner"),
		kong.Description("Reminder scheduler for tasks and habits."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := ctx.Run(&appContext{cfg: cfg, logger: logger}); err != nil {
		logger.Error("command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}
