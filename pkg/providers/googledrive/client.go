package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"teledrive/pkg/models"
	"teledrive/pkg/transfer"
)

const (
	folderMimeType = "application/vnd.google-apps.folder"

	folderCacheSize = 64
	listPageSize    = 1000
)

// Sink writes files into a Drive folder with resumable chunked uploads
type Sink struct {
	creds     TokenSourcer
	chunkSize int
	opts      []option.ClientOption
	log       *slog.Logger

	mu      sync.RWMutex
	service *drive.Service
	folders *lru.Cache[string, string]
}

// NewSink authenticates and builds the Drive service. Extra client
// options are appended after the token source.
func NewSink(ctx context.Context, creds TokenSourcer, chunkSize int, log *slog.Logger, opts ...option.ClientOption) (*Sink, error) {
	folders, err := lru.New[string, string](folderCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder cache: %w", err)
	}
	s := &Sink{
		creds:     creds,
		chunkSize: chunkSize,
		opts:      opts,
		log:       log,
		folders:   folders,
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) connect(ctx context.Context) error {
	ts, err := s.creds.TokenSource(ctx)
	if err != nil {
		return err
	}
	opts := append([]option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(nil, ts))}, s.opts...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create Google Drive service: %w", err)
	}

	s.mu.Lock()
	s.service = service
	s.mu.Unlock()
	return nil
}

func (s *Sink) svc() *drive.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.service
}

// Reauthenticate rebuilds the service from fresh credentials
func (s *Sink) Reauthenticate(ctx context.Context) error {
	s.log.Info("Re-authenticating with Google Drive")
	return s.connect(ctx)
}

// EnsureContainer finds a non-trashed folder named name or creates it
func (s *Sink) EnsureContainer(ctx context.Context, name string) (string, error) {
	if id, ok := s.folders.Get(name); ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	list, err := s.svc().Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %q: %w", name, mapError(err))
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
	} else {
		folder, err := s.svc().Files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
			Fields("id").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder %q: %w", name, mapError(err))
		}
		id = folder.Id
		s.log.Info("Created Drive folder", "name", name, "id", id)
	}

	s.folders.Add(name, id)
	return id, nil
}

// ResolveUniqueName returns proposed, or "<stem> (n)<ext>" for the
// smallest n not already present in the folder
func (s *Sink) ResolveUniqueName(ctx context.Context, containerID, proposed string) (string, error) {
	stem := strings.TrimSuffix(proposed, path.Ext(proposed))
	q := fmt.Sprintf("'%s' in parents and trashed = false and name contains '%s'", escapeQuery(containerID), escapeQuery(stem))

	taken := make(map[string]struct{})
	err := s.svc().Files.List().
		Q(q).
		Fields("nextPageToken, files(name)").
		PageSize(listPageSize).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				taken[f.Name] = struct{}{}
			}
			return nil
		})
	if err != nil {
		return "", fmt.Errorf("failed to list folder: %w", mapError(err))
	}

	return transfer.NextFreeName(proposed, func(name string) (bool, error) {
		_, ok := taken[name]
		return ok, nil
	})
}

// Write uploads req.Body in chunks and returns the Drive file id and md5
func (s *Sink) Write(ctx context.Context, req transfer.WriteRequest) (transfer.WriteResult, error) {
	start := time.Now()
	file := &drive.File{
		Name:     req.Name,
		Parents:  []string{req.ContainerID},
		MimeType: req.ContentType,
	}

	created, err := s.svc().Files.Create(file).
		Media(req.Body, googleapi.ChunkSize(s.chunkSize), googleapi.ContentType(req.ContentType)).
		ProgressUpdater(func(current, _ int64) {
			if req.OnProgress != nil {
				req.OnProgress(current, time.Since(start))
			}
		}).
		Fields("id, md5Checksum, size").
		Context(ctx).
		Do()
	if err != nil {
		return transfer.WriteResult{}, fmt.Errorf("failed to upload %s: %w", req.Name, mapError(err))
	}

	return transfer.WriteResult{ID: created.Id, Checksum: created.Md5Checksum, Size: created.Size}, nil
}

// escapeQuery quotes a literal for the Drive query language
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// mapError translates Drive failures onto the retry taxonomy
func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		reason := ""
		if len(gerr.Errors) > 0 {
			reason = gerr.Errors[0].Reason
		}
		switch {
		case gerr.Code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", models.ErrAuthExpired, err)
		case gerr.Code == http.StatusForbidden && (reason == "storageQuotaExceeded" || reason == "quotaExceeded"):
			return fmt.Errorf("%w: %w", models.ErrQuotaExceeded, err)
		case gerr.Code == http.StatusTooManyRequests,
			gerr.Code == http.StatusForbidden && strings.HasSuffix(strings.ToLower(reason), "ratelimitexceeded"):
			if wait := retryAfter(gerr.Header); wait > 0 {
				return &models.RateLimitedError{RetryAfter: wait, Err: err}
			}
			return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
		case gerr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
		}
		return err
	}

	if errors.Is(err, models.ErrAuthExpired) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", models.ErrTransientIO, err)
	}
	return err
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
