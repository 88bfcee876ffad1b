package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"teledrive/api"
	"teledrive/pkg/scheduler"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(st *cliState) *cobra.Command {
	var (
		host     string
		port     int
		cronExpr string
		origins  []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP status API and the optional cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := st.cfg
			if cmd.Flags().Changed("host") {
				cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("cron") {
				cfg.MonitorCron = cronExpr
			}
			log := st.log

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				log.Info("Closing Telegram client...")
				_ = a.Close()
			}()

			var (
				sched    *scheduler.Scheduler
				schedule api.NextRunner
			)
			if cfg.MonitorCron != "" {
				sched, err = scheduler.NewScheduler(cfg.MonitorCron, a.controller, log)
				if err != nil {
					return fmt.Errorf("invalid MONITOR_CRON: %w", err)
				}
				schedule = sched
			}

			if cfg.LogLevel != "DEBUG" {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.SetupRouter(api.Options{
				Runner:       a.controller,
				Credentials:  a.credentials,
				Schedule:     schedule,
				Metrics:      promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
				Chat:         cfg.Chat,
				Sink:         cfg.Sink,
				AllowOrigins: origins,
				Log:          log,
			})
			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("Starting HTTP server", "address", srv.Addr, "at", time.Now().UTC())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("HTTP server error: %w", err)
				}
				return nil
			})
			if sched != nil {
				g.Go(func() error {
					return sched.Run(gctx)
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				log.Info("Shutting down gracefully...")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				srvErr := srv.Shutdown(shutdownCtx)
				if err := a.controller.Shutdown(shutdownCtx); err != nil {
					log.Warn("Active run did not stop in time", "error", err)
				}
				return srvErr
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Info("Program stopped cleanly")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host")
	cmd.Flags().IntVar(&port, "port", 5000, "listen port")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "5-field cron expression for scheduled runs")
	cmd.Flags().StringSliceVar(&origins, "cors-origin", nil, "allowed CORS origins (default any)")
	return cmd
}
