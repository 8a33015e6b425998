package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"slack-calendar/internal/scheduler"
	"slack-calendar/internal/server"
)

func newServeCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled scan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			cfg := a.cfg

			srv := server.New(cfg, a.ingest, a.store, a.extractor, server.NewTaskStore(a.clock), a.cache,
				server.WithMetrics(a.metrics),
				server.WithClock(a.clock),
				server.WithLogger(a.log),
			)

			var sched *scheduler.Scheduler
			if spec := cfg.Scheduler.ScanSpec; spec != "" {
				var err error
				sched, err = scheduler.New(spec, a.ingest,
					scheduler.WithTimeout(cfg.Processing.TaskTimeout),
					scheduler.WithLogger(a.log),
				)
				if err != nil {
					return err
				}
				sched.Start()
			}

			serverDone := make(chan struct{})
			go func() {
				defer close(serverDone)
				a.log.Info("Starting server", "addr", cfg.Address())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("Server error", "error", err)
				}
			}()

			select {
			case <-cmd.Context().Done():
				a.log.Info("Signal received, shutting down...")
			case <-serverDone:
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			// Сначала останавливаем планировщик, чтобы не начинать новые сканирования.
			if sched != nil {
				sched.Stop(shutdownCtx)
			}
			// Shutdown дожидается фоновых загрузок, поэтому хранилище
			// закрывается только после их очистки.
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error("Server forced to shutdown", "error", err)
			}
			<-serverDone

			a.log.Info("Application exited gracefully")
			return nil
		},
	}
}
