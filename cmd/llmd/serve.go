package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llmd/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			return runServe(app)
		},
	}
}

func runServe(app *app) error {
	api := httpapi.NewServer(app.reg, app.orch, app.cfg.DefaultModel, app.log)
	srv := &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.log.Info().
			Str("addr", app.cfg.Addr).
			Str("models_dir", app.reg.Root()).
			Msg("llmd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.log.Info().Msg("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		app.log.Warn().Err(err).Msg("graceful shutdown")
	}
	api.Shutdown()
	return nil
}
