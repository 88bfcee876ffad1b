package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"teledrive/pkg/integrity"
	"teledrive/pkg/metrics"
	"teledrive/pkg/models"
	"teledrive/pkg/pool"
	"teledrive/pkg/progress"
	"teledrive/pkg/streaming"
)

const (
	legDownload = "download"
	legUpload   = "upload"
	legPrepare  = "prepare"
	legResolve  = "resolve"

	defaultChunkSize = 1 << 20
)

// Options configure a Pipeline
type Options struct {
	ChunkSize    int
	MaxSizeBytes int64 // 0 disables the size policy
	TempDir      string
	Retry        RetryPolicy
}

// Pipeline moves one item at a time from Source to Sink. Each item is
// downloaded into a spool file through a single pooled chunk buffer, then
// uploaded from that file, so memory use does not depend on item size.
type Pipeline struct {
	source   Source
	sink     Sink
	reauth   Reauthenticator
	recorder Recorder
	reporter *progress.Reporter
	buffers  *pool.BufferPool
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options

	mu            sync.Mutex
	containerName string
	containerID   string
}

// NewPipeline wires a pipeline. m may be nil.
func NewPipeline(source Source, sink Sink, recorder Recorder, reporter *progress.Reporter, m *metrics.Metrics, log *slog.Logger, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	p := &Pipeline{
		source:   source,
		sink:     sink,
		recorder: recorder,
		reporter: reporter,
		buffers:  pool.NewBufferPool(opts.ChunkSize),
		metrics:  m,
		log:      log,
		opts:     opts,
	}
	if r, ok := sink.(Reauthenticator); ok {
		p.reauth = r
	}
	return p
}

// BufferStats exposes chunk buffer accounting
func (p *Pipeline) BufferStats() pool.BufferPoolStats {
	return p.buffers.Stats()
}

// Prepare resolves the sink container once per batch. A failure that
// outlasts the retry policy aborts the batch; only failures no retry can fix
// are reported as configuration errors.
func (p *Pipeline) Prepare(ctx context.Context, containerName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.containerID != "" && p.containerName == containerName {
		return nil
	}

	var id string
	_, err := p.retry(ctx, legPrepare, func(ctx context.Context, _ int) error {
		var err error
		id, err = p.sink.EnsureContainer(ctx, containerName)
		return err
	})
	if err != nil {
		msg := fmt.Sprintf("cannot prepare sink container %q", containerName)
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", msg, err)
		}
		switch models.Classify(err) {
		case models.KindTransient, models.KindRateLimited, models.KindQuota:
			return fmt.Errorf("%s: %w", msg, err)
		default:
			return models.Configuration(msg, err)
		}
	}

	p.containerName = containerName
	p.containerID = id
	p.log.Info("Sink container ready", "container", containerName, "id", id)
	return nil
}

// Oversized reports whether the size policy excludes item
func (p *Pipeline) Oversized(item models.TransferItem) bool {
	return p.opts.MaxSizeBytes > 0 && item.SizeBytes > p.opts.MaxSizeBytes
}

// itemProgress keeps per-item byte counters as high-water marks so a
// restarted leg never moves the published figure backwards.
type itemProgress struct {
	size     atomic.Int64
	in       atomic.Int64
	out      atomic.Int64
	meter    *progress.Meter
	reporter *progress.Reporter
}

func newItemProgress(size int64, reporter *progress.Reporter) *itemProgress {
	ip := &itemProgress{meter: progress.NewMeter(2 * size), reporter: reporter}
	ip.size.Store(size)
	return ip
}

// setSize pins the item size once the spool is complete
func (ip *itemProgress) setSize(n int64) {
	ip.size.Store(n)
	ip.meter.SetTotal(2 * n)
}

// total is twice the item size. While the size is unknown, or the source
// understated it, it follows the bytes spooled so far.
func (ip *itemProgress) total() int64 {
	return 2 * max(ip.size.Load(), ip.in.Load())
}

func raise(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (ip *itemProgress) moved() int64 {
	return ip.in.Load() + ip.out.Load()
}

func (ip *itemProgress) publish(throttled bool) {
	moved := ip.moved()
	total := ip.total()
	rate, eta := ip.meter.Observe(moved)
	apply := func(s *models.ProgressSnapshot) {
		s.BytesTotal = total
		if moved > s.BytesMoved {
			s.BytesMoved = moved
		}
		s.Rate = rate
		s.ETA = progress.FormatETA(eta)
	}
	if throttled {
		ip.reporter.UpdateThrottled(apply)
		return
	}
	ip.reporter.Update(apply)
}

func (ip *itemProgress) observeIn(n int64, _ time.Duration) {
	raise(&ip.in, n)
	ip.publish(true)
}

func (ip *itemProgress) observeOut(n int64, _ time.Duration) {
	raise(&ip.out, n)
	ip.publish(true)
}

// Execute runs the state machine for one item and always returns a
// result; per-item failures never escape as errors.
func (p *Pipeline) Execute(ctx context.Context, item models.TransferItem) (res models.ItemResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = models.Failed(item, models.ReasonSourceError, fmt.Errorf("transfer panicked: %v", r))
		}
		res.Duration = time.Since(start)
		p.metrics.ObserveItem(res)
	}()

	if p.Oversized(item) {
		p.log.Info("Skipping oversized item",
			"item", item.DisplayName, "size", humanize.Bytes(uint64(item.SizeBytes)))
		return models.Skipped(item, models.ReasonOversized)
	}

	p.mu.Lock()
	containerID := p.containerID
	p.mu.Unlock()
	if containerID == "" {
		return models.Failed(item, models.ReasonSinkError, models.Configuration("pipeline used before Prepare", nil))
	}

	// Opening
	name := item.DisplayName
	attempts, err := p.retry(ctx, legResolve, func(ctx context.Context, _ int) error {
		resolved, err := p.sink.ResolveUniqueName(ctx, containerID, item.DisplayName)
		if err == nil {
			name = resolved
		}
		return err
	})
	if err != nil {
		r := models.Failed(item, sinkReason(err), fmt.Errorf("failed to resolve name: %w", err))
		r.Attempts = attempts
		return r
	}

	spool, err := os.CreateTemp(p.opts.TempDir, "teledrive-*.part")
	if err != nil {
		return models.Failed(item, models.ReasonSourceError, fmt.Errorf("failed to create spool file: %w", err))
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	ip := newItemProgress(item.SizeBytes, p.reporter)
	p.reporter.Update(func(s *models.ProgressSnapshot) {
		s.Phase = models.PhaseTransferringIn
		s.CurrentItem = &name
		s.BytesTotal = 2 * item.SizeBytes
		s.BytesMoved = 0
		s.Rate = 0
		s.ETA = ""
	})

	// Streaming: source -> spool
	hasher := integrity.NewStreamingHasher()
	inAttempts, err := p.retry(ctx, legDownload, func(ctx context.Context, attempt int) error {
		return p.download(ctx, item, spool, hasher, ip)
	})
	if err != nil {
		r := failedDownload(item, err)
		r.Attempts = inAttempts
		return r
	}
	hashes := hasher.GetHashes()
	ip.setSize(hashes.Size)
	p.metrics.AddBytes(legDownload, hashes.Size)

	// Streaming: spool -> sink
	p.reporter.Update(func(s *models.ProgressSnapshot) {
		s.Phase = models.PhaseTransferringOut
	})
	contentType := p.contentType(spool.Name(), item)

	var written WriteResult
	outAttempts, err := p.retry(ctx, legUpload, func(ctx context.Context, attempt int) error {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind spool: %w", err)
		}
		body := streaming.NewProgressReader(spool, hashes.Size, p.opts.ChunkSize, ip.observeOut)
		res, err := p.sink.Write(ctx, WriteRequest{
			ContainerID: containerID,
			Name:        name,
			ContentType: contentType,
			Body:        body,
			Size:        hashes.Size,
			OnProgress:  ip.observeOut,
		})
		if err != nil {
			return err
		}
		if err := integrity.Verify(res.Checksum, res.Size, hashes); err != nil {
			return err
		}
		written = res
		return nil
	})
	if err != nil {
		r := models.Failed(item, sinkReason(err), err)
		if r.Reason == models.ReasonQuotaExceeded {
			r.Outcome = models.OutcomeSkipped
		}
		r.Attempts = inAttempts + outAttempts
		return r
	}
	p.metrics.AddBytes(legUpload, hashes.Size)

	// Finalizing
	raise(&ip.out, hashes.Size)
	raise(&ip.in, hashes.Size)
	ip.publish(false)

	rec := models.TransferRecord{
		Name:        name,
		SinkID:      written.ID,
		SizeBytes:   hashes.Size,
		CompletedAt: time.Now().UTC(),
		SourceID:    item.Identity,
		Checksum:    hashes.MD5,
	}
	res = models.Succeeded(item, rec)
	res.Attempts = inAttempts + outAttempts
	if err := p.recorder.Record(item.Identity, rec); err != nil {
		// The object is in the sink; a lost record only costs a re-upload later.
		p.log.Error("Transfer succeeded but tracker update failed", "item", name, "error", err)
		res.Reason = models.ReasonTrackerError
		res.Err = err
	}

	p.log.Info("Transfer completed",
		"item", name,
		"sink_id", written.ID,
		"size", humanize.Bytes(uint64(hashes.Size)),
		"attempts", res.Attempts,
		"duration", time.Since(start).Round(time.Millisecond))
	return res
}

// download copies one fresh source stream into spool. A retried attempt
// starts over from an empty spool.
func (p *Pipeline) download(ctx context.Context, item models.TransferItem, spool *os.File, hasher *integrity.StreamingHasher, ip *itemProgress) error {
	if err := spool.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate spool: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind spool: %w", err)
	}
	hasher.Reset()

	stream, err := p.source.Open(ctx, item, ip.observeIn)
	if err != nil {
		return err
	}
	defer stream.Close()

	buf := p.buffers.Get()
	defer p.buffers.Put(buf)

	dst := io.MultiWriter(spool, hasher)
	var written int64
	for {
		n, rerr := stream.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return fmt.Errorf("failed to write spool: %w", werr)
			}
			written += int64(n)
			if p.opts.MaxSizeBytes > 0 && written > p.opts.MaxSizeBytes {
				return models.ErrOversized
			}
			ip.observeIn(written, 0)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if item.SizeBytes > 0 && written != item.SizeBytes {
		return fmt.Errorf("%w: short read %d of %d bytes", models.ErrSourceUnavailable, written, item.SizeBytes)
	}
	return nil
}

// contentType sniffs the spooled bytes and falls back to the source's type
func (p *Pipeline) contentType(path string, item models.TransferItem) string {
	mime, err := mimetype.DetectFile(path)
	if err == nil && mime.String() != "application/octet-stream" {
		return mime.String()
	}
	if item.MimeType != "" {
		return item.MimeType
	}
	return "video/mp4"
}

func failedDownload(item models.TransferItem, err error) models.ItemResult {
	switch {
	case errors.Is(err, models.ErrOversized):
		return models.Skipped(item, models.ReasonOversized)
	case errors.Is(err, models.ErrItemGone):
		return models.Failed(item, models.ReasonSourceGone, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.Failed(item, models.ReasonCancelled, err)
	default:
		return models.Failed(item, models.ReasonSourceError, err)
	}
}

func sinkReason(err error) models.Reason {
	switch models.Classify(err) {
	case models.KindQuota:
		return models.ReasonQuotaExceeded
	case models.KindAuth, models.KindConfiguration:
		return models.ReasonAuth
	}
	switch {
	case errors.Is(err, models.ErrChecksumMismatch):
		return models.ReasonIntegrity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ReasonCancelled
	}
	return models.ReasonSinkError
}
