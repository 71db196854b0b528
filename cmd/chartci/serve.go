package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chartci/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		Long:  `Starts an HTTP server that accepts signed GitHub webhooks and events, runs the pipeline for each and reports run status.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			d := server.NewDispatcher(ctx, runner, a.pipeline, a.logger)
			if interval := time.Duration(a.cfg.Server.ScheduleInterval); interval > 0 {
				go d.Schedule(ctx, interval)
			}

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           server.New(d, []byte(a.cfg.Server.WebhookSecret), a.cfg.MainBranch, a.logger).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("server listening", "addr", srv.Addr, "pipeline", a.pipeline.Name)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				a.logger.Info("shutting down")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
			d.Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config and PORT)")
	return cmd
}
