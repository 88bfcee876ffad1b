package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"teledrive/pkg/providers/googledrive"
	"teledrive/pkg/providers/telegram"
)

func newAuthCommand(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Create the credentials the service needs to run unattended",
	}
	cmd.AddCommand(newAuthDriveCommand(st), newAuthTelegramCommand(st))
	return cmd
}

func newAuthDriveCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Authorize Google Drive access and save the token file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := st.cfg
			creds := googledrive.NewCredentialProvider(cfg.DriveCredentialsFile, cfg.DriveTokenFile, "", st.log)

			url, err := creds.AuthURL(uuid.NewString())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL in a browser and authorize access:\n\n%s\n\n", url)

			code, err := prompt(cmd.Context(), cmd.InOrStdin(), out, "Authorization code: ")
			if err != nil {
				return err
			}
			if err := creds.Exchange(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintf(out, "Token saved to %s\n", cfg.DriveTokenFile)
			return nil
		},
	}
}

func newAuthTelegramCommand(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Log in to Telegram and save the session file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := st.cfg
			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())

			source, err := telegram.Connect(cmd.Context(), telegram.Config{
				AppID:       cfg.TelegramAppID,
				AppHash:     cfg.TelegramAppHash,
				Phone:       cfg.TelegramPhone,
				Password:    cfg.TelegramPassword,
				SessionFile: cfg.TelegramSessionFile,
			}, st.log, func(ctx context.Context) (string, error) {
				return prompt(ctx, in, out, "Login code sent by Telegram: ")
			})
			if err != nil {
				return err
			}
			defer source.Close()

			fmt.Fprintf(out, "Session saved to %s\n", cfg.TelegramSessionFile)
			return nil
		},
	}
}

// prompt reads one trimmed line from in
func prompt(ctx context.Context, in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)

	reader, ok := in.(*bufio.Reader)
	if !ok {
		reader = bufio.NewReader(in)
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		line := strings.TrimSpace(r.line)
		if line == "" {
			if r.err != nil {
				return "", fmt.Errorf("failed to read input: %w", r.err)
			}
			return "", fmt.Errorf("empty input")
		}
		return line, nil
	}
}
