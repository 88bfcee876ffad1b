package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"

	"teledrive/pkg/models"
)

// Config holds what is needed to reach the MTProto API
type Config struct {
	AppID       int
	AppHash     string
	Phone       string
	Password    string
	SessionFile string
	BatchSize   int
	ChunkSize   int
}

// CodePrompt asks a human for the login code Telegram just sent
type CodePrompt func(ctx context.Context) (string, error)

// Source enumerates and downloads videos from Telegram chats. The MTProto
// client runs in a background goroutine until Close.
type Source struct {
	cfg        Config
	raw        *tg.Client
	resolver   peer.Resolver
	downloader *downloader.Downloader
	log        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass
	refs  map[string]*tg.Document
}

// Connect starts the client and waits until it is authorized. With a nil
// prompt an unauthorized session fails with ErrAuthUnavailable instead of
// asking for a code.
func Connect(ctx context.Context, cfg Config, log *slog.Logger, prompt CodePrompt) (*Source, error) {
	if cfg.AppID == 0 || cfg.AppHash == "" {
		return nil, models.Configuration("telegram api id and hash are required", nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1 << 20
	}

	client := telegram.NewClient(cfg.AppID, cfg.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionFile},
		NoUpdates:      true,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan error, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		err := client.Run(runCtx, func(ctx context.Context) error {
			if err := authenticate(ctx, client, cfg, prompt, log); err != nil {
				return err
			}
			ready <- nil
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Telegram client stopped", "error", err)
		}
		select {
		case ready <- err:
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			<-done
			return nil, models.Configuration("telegram connection failed", err)
		}
	case <-ctx.Done():
		cancel()
		<-done
		return nil, ctx.Err()
	}

	raw := client.API()
	log.Info("Connected to Telegram", "session", cfg.SessionFile)
	return &Source{
		cfg:        cfg,
		raw:        raw,
		resolver:   peer.DefaultResolver(raw),
		downloader: downloader.NewDownloader().WithPartSize(downloadPartSize(cfg.ChunkSize)),
		log:        log,
		cancel:     cancel,
		done:       done,
		peers:      make(map[string]tg.InputPeerClass),
		refs:       make(map[string]*tg.Document),
	}, nil
}

// Close stops the client and waits for it to exit
func (s *Source) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func authenticate(ctx context.Context, client *telegram.Client, cfg Config, prompt CodePrompt, log *slog.Logger) error {
	status, err := client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to check telegram auth status: %w", err)
	}
	if status.Authorized {
		return nil
	}
	if prompt == nil {
		return fmt.Errorf("%w: telegram session is not authorized, run `teledrive auth telegram`", models.ErrAuthUnavailable)
	}
	if cfg.Phone == "" {
		return fmt.Errorf("%w: TELEGRAM_PHONE is required to log in", models.ErrAuthUnavailable)
	}

	log.Info("Logging in to Telegram", "phone", maskPhone(cfg.Phone))
	flow := auth.NewFlow(
		auth.Constant(cfg.Phone, cfg.Password, auth.CodeAuthenticatorFunc(
			func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return prompt(ctx)
			},
		)),
		auth.SendCodeOptions{},
	)
	if err := client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("telegram login failed: %w", err)
	}
	return nil
}

// downloadPartSize picks the largest MTProto part size (a power of two
// between 4 KiB and 512 KiB) not above chunk
func downloadPartSize(chunk int) int {
	size := 512 * 1024
	for size > 4096 && size > chunk {
		size /= 2
	}
	return size
}

func maskPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	return phone[:3] + "***" + phone[len(phone)-2:]
}
