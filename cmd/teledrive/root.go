package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"teledrive/pkg/config"
)

// cliState is shared by every subcommand once flags are parsed
type cliState struct {
	cfg config.Config
	log *slog.Logger

	logLevel    string
	chat        string
	sink        string
	trackerFile string
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	st := &cliState{}

	root := &cobra.Command{
		Use:           "teledrive",
		Short:         "Copy videos from a Telegram chat to Google Drive or S3",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = strings.ToUpper(st.logLevel)
			}
			if flags.Changed("chat") {
				cfg.Chat = st.chat
			}
			if flags.Changed("sink") {
				cfg.Sink = st.sink
			}
			if flags.Changed("tracker-file") {
				cfg.TrackerFile = st.trackerFile
			}
			st.cfg = cfg
			st.log = logs.GetLoggerFromString(cfg.LogLevel)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&st.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&st.chat, "chat", "", "Telegram chat username to read videos from")
	pf.StringVar(&st.sink, "sink", config.SinkDrive, "destination: drive or s3")
	pf.StringVar(&st.trackerFile, "tracker-file", "", "path of the transferred-items tracker")

	root.AddCommand(
		newServeCommand(st),
		newRunCommand(st),
		newMonitorCommand(st),
		newAuthCommand(st),
		newVersionCommand(),
	)
	return root
}

var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
