package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"teledrive/pkg/models"
)

func newRunCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Transfer every new video once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, st.cfg, st.log)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.orchestrator.RunOnce(ctx, st.cfg.Chat)
			printRun(cmd, run)
			if err != nil {
				return err
			}
			if run.FailedCount > 0 {
				return fmt.Errorf("%d of %d items failed", run.FailedCount, run.TotalCandidates)
			}
			return nil
		},
	}
}

func newMonitorCommand(st *cliState) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Transfer new videos repeatedly until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("interval") {
				interval = st.cfg.MonitorInterval
			}
			if interval <= 0 {
				return fmt.Errorf("monitor interval must be positive, got %s", interval)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, st.cfg, st.log)
			if err != nil {
				return err
			}
			defer a.Close()

			st.log.Info("Monitoring chat", "chat", st.cfg.Chat, "interval", interval)
			err = a.orchestrator.RunMonitor(ctx, st.cfg.Chat, interval, func(run models.BatchRun) {
				printRun(cmd, run)
			})
			if errors.Is(err, models.ErrConfiguration) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Minute, "wait between runs")
	return cmd
}

func printRun(cmd *cobra.Command, run models.BatchRun) {
	if run.ID == "" {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d candidates, %d succeeded, %d skipped (%d oversized), %d failed, %s moved in %s\n",
		run.ID, run.TotalCandidates, run.SucceededCount, run.SkippedCount, run.OversizedCount,
		run.FailedCount, humanize.Bytes(uint64(max(run.BytesMoved, 0))), run.Duration().Round(time.Second))
	for _, e := range run.Errors {
		fmt.Fprintf(out, "  %s %s (%s): %s\n", e.Outcome, e.Name, e.Reason, e.Message)
	}
	if run.Aborted != "" {
		fmt.Fprintf(out, "  aborted: %s\n", run.Aborted)
	}
}
