package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/config"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
	"github.com/filipezaidan/google-meet-captions/internal/page"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newDaemonCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the capture daemon",
		Long:  "Run the page hub that meeting tabs connect to, the recorder, and the control socket used by the other commands. Stops on SIGINT or SIGTERM after saving the active session.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, app)
		},
	}
}

func runDaemon(ctx context.Context, app *app) error {
	slog.SetDefault(app.log)

	hub := page.NewHub()
	engine := recorder.New(hub, storeOpener(app.cfg.DB.Path),
		recorder.WithConfig(app.cfg.Recorder()),
		recorder.WithLogger(app.log),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := engine.Close(closeCtx); err != nil {
			app.log.Warn("Failed to close session store", "error", err)
		}
	}()

	srv := daemon.NewServer(app.cfg.Socket, engine, app.log)
	if err := srv.Listen(); err != nil {
		return err
	}

	config.Watch(app.viper, app.log, func(c *config.Config) {
		engine.SetSelectors(c.Selectors())
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- hub.Serve(ctx, app.cfg.Listen) }()
	go func() { errCh <- srv.Serve(ctx) }()

	app.log.Info("Daemon started", "socket", srv.Path(), "listen", app.cfg.Listen, "db", app.cfg.DB.Path)

	// Whichever side stops first takes the other down with it.
	first := <-errCh
	cancel()
	second := <-errCh

	app.log.Info("Daemon stopping")
	return errors.Join(first, second)
}
