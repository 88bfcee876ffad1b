package transfer_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"teledrive/pkg/mocks"
	"teledrive/pkg/models"
	"teledrive/pkg/progress"
	"teledrive/pkg/streaming"
	"teledrive/pkg/transfer"
)

const testChunk = 64 * 1024

type fixture struct {
	ctrl     *gomock.Controller
	source   *mocks.MockSource
	sink     *mocks.MockSink
	recorder *mocks.MockRecorder
	reporter *progress.Reporter
	spoolDir string
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	return &fixture{
		ctrl:     ctrl,
		source:   mocks.NewMockSource(ctrl),
		sink:     mocks.NewMockSink(ctrl),
		recorder: mocks.NewMockRecorder(ctrl),
		reporter: progress.NewReporter(time.Nanosecond),
		spoolDir: t.TempDir(),
	}
}

func (f *fixture) options(maxSize int64) transfer.Options {
	return transfer.Options{
		ChunkSize:    testChunk,
		MaxSizeBytes: maxSize,
		TempDir:      f.spoolDir,
		Retry:        transfer.RetryPolicy{MaxAttempts: 3, Base: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

func (f *fixture) pipeline(t *testing.T, sink transfer.Sink, maxSize int64) *transfer.Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := transfer.NewPipeline(f.source, sink, f.recorder, f.reporter, nil, logger, f.options(maxSize))

	f.sink.EXPECT().EnsureContainer(gomock.Any(), "Telegram Videos").Return("folder-1", nil).Times(1)
	require.NoError(t, p.Prepare(context.Background(), "Telegram Videos"))
	require.NoError(t, p.Prepare(context.Background(), "Telegram Videos"))
	return p
}

func item(id int, size int64) models.TransferItem {
	return models.TransferItem{
		Identity:    fmt.Sprintf("tg:chan:%d", id),
		DisplayName: fmt.Sprintf("video_%d.mp4", id),
		SizeBytes:   size,
		MessageID:   id,
	}
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func zeroStream(size int64) streaming.Stream {
	return streaming.NewStream(io.NopCloser(io.LimitReader(zeros{}, size)), size, testChunk, nil)
}

func bytesStream(data []byte) streaming.Stream {
	return streaming.NewStream(io.NopCloser(bytes.NewReader(data)), int64(len(data)), testChunk, nil)
}

// failAfter yields n bytes of data and then err
type failAfter struct {
	r   io.Reader
	err error
}

func (f *failAfter) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, f.err
	}
	return n, err
}

func drain(ctx context.Context, req transfer.WriteRequest) (transfer.WriteResult, error) {
	n, err := io.Copy(io.Discard, req.Body)
	if err != nil {
		return transfer.WriteResult{}, err
	}
	return transfer.WriteResult{ID: "drive-" + req.Name, Size: n}, nil
}

func spoolEntries(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestPipeline_Success(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	data := []byte("not really a video but close enough")
	it := item(1, int64(len(data)))
	sum := md5.Sum(data)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), "folder-1", "video_1.mp4").Return("video_1.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(bytesStream(data), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
		req.Equal("folder-1", wr.ContainerID)
		req.Equal(int64(len(data)), wr.Size)
		got, err := io.ReadAll(wr.Body)
		req.NoError(err)
		req.Equal(data, got)
		return transfer.WriteResult{ID: "abc", Checksum: hex.EncodeToString(sum[:]), Size: int64(len(got))}, nil
	})
	f.recorder.EXPECT().Record("tg:chan:1", gomock.Any()).DoAndReturn(func(key string, rec models.TransferRecord) error {
		req.Equal("abc", rec.SinkID)
		req.Equal("video_1.mp4", rec.Name)
		req.Equal("tg:chan:1", rec.SourceID)
		req.Equal(hex.EncodeToString(sum[:]), rec.Checksum)
		return nil
	})

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
	req.NoError(res.Err)
	req.Equal(2, res.Attempts)
	req.Zero(spoolEntries(t, f.spoolDir))

	snap := f.reporter.Get()
	req.Equal(snap.BytesTotal, snap.BytesMoved)
	req.Equal(models.PhaseTransferringOut, snap.Phase)
}

func TestPipeline_DuplicateNameGetsSuffix(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	it := item(2, 10)
	it.DisplayName = "holiday.mp4"

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), "folder-1", "holiday.mp4").Return("holiday (1).mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
		req.Equal("holiday (1).mp4", wr.Name)
		return drain(ctx, wr)
	})
	f.recorder.EXPECT().Record("tg:chan:2", gomock.Any()).DoAndReturn(func(_ string, rec models.TransferRecord) error {
		req.Equal("holiday (1).mp4", rec.Name)
		return nil
	})

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
}

func TestPipeline_BoundedMemory(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	small, large := item(3, 1024), item(4, 32<<20)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, name string) (string, error) { return name, nil }).Times(2)
	f.source.EXPECT().Open(gomock.Any(), small, gomock.Any()).Return(zeroStream(small.SizeBytes), nil)
	f.source.EXPECT().Open(gomock.Any(), large, gomock.Any()).Return(zeroStream(large.SizeBytes), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain).Times(2)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	req.Equal(models.OutcomeSucceeded, p.Execute(context.Background(), small).Outcome)
	smallPeak := p.BufferStats().Peak

	req.Equal(models.OutcomeSucceeded, p.Execute(context.Background(), large).Outcome)
	largePeak := p.BufferStats().Peak

	req.Equal(int64(testChunk), smallPeak)
	req.Equal(smallPeak, largePeak)
	req.Zero(p.BufferStats().Allocated)
}

func TestPipeline_SinkTransientTwiceThenSucceeds(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(5, 4096)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_5.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(4096), nil).Times(1)

	writes := 0
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
		writes++
		// each attempt restarts from the first byte of the spool
		res, err := drain(ctx, wr)
		req.NoError(err)
		req.Equal(int64(4096), res.Size)
		if writes <= 2 {
			return transfer.WriteResult{}, fmt.Errorf("503 backend error: %w", models.ErrTransientIO)
		}
		return res, nil
	}).Times(3)
	f.recorder.EXPECT().Record("tg:chan:5", gomock.Any()).Return(nil).Times(1)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
	req.Equal(4, res.Attempts)
}

func TestPipeline_RetriesExhausted(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(6, 100)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_6.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(100), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrTransientIO).Times(3)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeFailed, res.Outcome)
	req.Equal(models.ReasonSinkError, res.Reason)
	req.ErrorIs(res.Err, models.ErrTransientIO)
	req.Zero(spoolEntries(t, f.spoolDir))
}

func TestPipeline_SourceGoneIsNotRetried(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(7, 100)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_7.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(nil, fmt.Errorf("MESSAGE_ID_INVALID: %w", models.ErrItemGone)).Times(1)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeFailed, res.Outcome)
	req.Equal(models.ReasonSourceGone, res.Reason)
	req.Equal(1, res.Attempts)
}

func TestPipeline_DownloadRestartsAfterMidStreamFailure(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	data := bytes.Repeat([]byte("ab"), 100_000)
	it := item(8, int64(len(data)))

	broken := &failAfter{r: bytes.NewReader(data[:50_000]), err: fmt.Errorf("connection reset: %w", models.ErrSourceUnavailable)}
	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_8.mp4", nil)
	gomock.InOrder(
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(
			streaming.NewStream(io.NopCloser(broken), it.SizeBytes, testChunk, nil), nil),
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(bytesStream(data), nil),
	)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
		got, err := io.ReadAll(wr.Body)
		req.NoError(err)
		req.Equal(data, got)
		return transfer.WriteResult{ID: "x", Size: int64(len(got))}, nil
	})
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
}

func TestPipeline_RateLimitedWaitsRetryAfter(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(9, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_9.mp4", nil)
	gomock.InOrder(
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(nil, &models.RateLimitedError{RetryAfter: 30 * time.Millisecond}),
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil),
	)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	start := time.Now()
	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
	req.GreaterOrEqual(time.Since(start), 30*time.Millisecond)
}

type reauthSink struct {
	*mocks.MockSink
	*mocks.MockReauthenticator
}

func TestPipeline_AuthExpiredReauthenticatesOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	reauth := mocks.NewMockReauthenticator(f.ctrl)
	p := f.pipeline(t, reauthSink{f.sink, reauth}, 0)
	it := item(10, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_10.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	gomock.InOrder(
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrAuthExpired),
		reauth.EXPECT().Reauthenticate(gomock.Any()).Return(nil),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain),
	)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
}

func TestPipeline_AuthExpiredTwiceFails(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	reauth := mocks.NewMockReauthenticator(f.ctrl)
	p := f.pipeline(t, reauthSink{f.sink, reauth}, 0)
	it := item(11, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_11.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrAuthExpired).Times(2)
	reauth.EXPECT().Reauthenticate(gomock.Any()).Return(nil).Times(1)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeFailed, res.Outcome)
	req.Equal(models.ReasonAuth, res.Reason)
}

func TestPipeline_AuthExpiredOnLastAttemptStillRetries(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	reauth := mocks.NewMockReauthenticator(f.ctrl)
	p := f.pipeline(t, reauthSink{f.sink, reauth}, 0)
	it := item(18, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_18.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	gomock.InOrder(
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrTransientIO),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrTransientIO),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrAuthExpired),
		reauth.EXPECT().Reauthenticate(gomock.Any()).Return(nil),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain),
	)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
	req.Equal(5, res.Attempts)
}

func TestPipeline_ReauthDoesNotExtendTransientBudget(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	reauth := mocks.NewMockReauthenticator(f.ctrl)
	p := f.pipeline(t, reauthSink{f.sink, reauth}, 0)
	it := item(19, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_19.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	gomock.InOrder(
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrAuthExpired),
		reauth.EXPECT().Reauthenticate(gomock.Any()).Return(nil),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrTransientIO).Times(3),
	)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeFailed, res.Outcome)
	req.ErrorIs(res.Err, models.ErrTransientIO)
	req.Equal(5, res.Attempts)
}

func TestPipeline_QuotaSkipsWithoutRetry(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(12, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_12.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{}, models.ErrQuotaExceeded).Times(1)

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSkipped, res.Outcome)
	req.Equal(models.ReasonQuotaExceeded, res.Reason)
	req.ErrorIs(res.Err, models.ErrQuotaExceeded)
}

func TestPipeline_ChecksumMismatchRetries(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	data := []byte("payload")
	it := item(13, int64(len(data)))
	sum := md5.Sum(data)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_13.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(bytesStream(data), nil)
	gomock.InOrder(
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{ID: "a", Checksum: "deadbeefdeadbeefdeadbeefdeadbeef"}, nil),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).Return(transfer.WriteResult{ID: "b", Checksum: hex.EncodeToString(sum[:])}, nil),
	)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ string, rec models.TransferRecord) error {
		req.Equal("b", rec.SinkID)
		return nil
	})

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
}

func TestPipeline_OversizedSkips(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 1000)

	res := p.Execute(context.Background(), item(14, 2000))
	req.Equal(models.OutcomeSkipped, res.Outcome)
	req.Equal(models.ReasonOversized, res.Reason)

	// size unknown up front, discovered while streaming
	unknown := item(15, 0)
	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_15.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), unknown, gomock.Any()).Return(zeroStream(5000), nil).Times(1)

	res = p.Execute(context.Background(), unknown)
	req.Equal(models.OutcomeSkipped, res.Outcome)
	req.Equal(models.ReasonOversized, res.Reason)
	req.Zero(spoolEntries(t, f.spoolDir))
}

func TestPipeline_TrackerFailureStillSucceeds(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)
	it := item(16, 10)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_16.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(10), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("read-only file system"))

	res := p.Execute(context.Background(), it)
	req.Equal(models.OutcomeSucceeded, res.Outcome)
	req.Equal(models.ReasonTrackerError, res.Reason)
	req.Error(res.Err)
}

func TestPipeline_ProgressIsMonotonic(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	size := int64(2 << 20)
	it := item(17, size)
	broken := &failAfter{r: io.LimitReader(zeros{}, size/2), err: models.ErrSourceUnavailable}

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_17.mp4", nil)
	gomock.InOrder(
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(
			streaming.NewStream(io.NopCloser(broken), size, testChunk, nil), nil),
		f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(size), nil),
	)
	gomock.InOrder(
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
			_, _ = io.CopyN(io.Discard, wr.Body, size/2)
			return transfer.WriteResult{}, models.ErrTransientIO
		}),
		f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(drain),
	)
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	var (
		wg      sync.WaitGroup
		samples []models.ProgressSnapshot
		done    = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				samples = append(samples, f.reporter.Get())
			}
		}
	}()

	res := p.Execute(context.Background(), it)
	close(done)
	wg.Wait()
	samples = append(samples, f.reporter.Get())

	req.Equal(models.OutcomeSucceeded, res.Outcome)
	var last int64
	for _, s := range samples {
		if s.CurrentItem == nil || *s.CurrentItem != "video_17.mp4" {
			continue
		}
		req.GreaterOrEqual(s.BytesMoved, last)
		req.LessOrEqual(s.BytesMoved, s.BytesTotal)
		last = s.BytesMoved
	}
	req.Equal(2*size, last)
}

// sampleProgress polls the reporter while run executes
func sampleProgress(f *fixture, run func()) []models.ProgressSnapshot {
	var (
		wg      sync.WaitGroup
		samples []models.ProgressSnapshot
		done    = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				samples = append(samples, f.reporter.Get())
			}
		}
	}()
	run()
	close(done)
	wg.Wait()
	return append(samples, f.reporter.Get())
}

func TestPipeline_ProgressWithUnknownSize(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	p := f.pipeline(t, f.sink, 0)

	actual := int64(3*testChunk + 7)
	it := item(20, 0)

	f.sink.EXPECT().ResolveUniqueName(gomock.Any(), gomock.Any(), gomock.Any()).Return("video_20.mp4", nil)
	f.source.EXPECT().Open(gomock.Any(), it, gomock.Any()).Return(zeroStream(actual), nil)
	f.sink.EXPECT().Write(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, wr transfer.WriteRequest) (transfer.WriteResult, error) {
		req.Equal(actual, wr.Size)
		return drain(ctx, wr)
	})
	f.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ string, rec models.TransferRecord) error {
		req.Equal(actual, rec.SizeBytes)
		return nil
	})

	var res models.ItemResult
	samples := sampleProgress(f, func() { res = p.Execute(context.Background(), it) })
	req.Equal(models.OutcomeSucceeded, res.Outcome)

	var last int64
	for _, s := range samples {
		if s.CurrentItem == nil || *s.CurrentItem != "video_20.mp4" {
			continue
		}
		req.GreaterOrEqual(s.BytesMoved, last)
		req.LessOrEqual(s.BytesMoved, s.BytesTotal)
		last = s.BytesMoved
	}
	final := samples[len(samples)-1]
	req.Equal(2*actual, final.BytesTotal)
	req.Equal(2*actual, final.BytesMoved)
}

func TestPipeline_PrepareClassifiesFailures(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := transfer.NewPipeline(f.source, f.sink, f.recorder, f.reporter, nil, logger, f.options(0))

	f.sink.EXPECT().EnsureContainer(gomock.Any(), "Telegram Videos").Return("", models.ErrTransientIO).Times(3)
	err := p.Prepare(context.Background(), "Telegram Videos")
	req.ErrorIs(err, models.ErrTransientIO)
	req.NotErrorIs(err, models.ErrConfiguration)

	f.sink.EXPECT().EnsureContainer(gomock.Any(), "Telegram Videos").Return("", models.ErrAuthUnavailable).Times(1)
	err = p.Prepare(context.Background(), "Telegram Videos")
	req.ErrorIs(err, models.ErrConfiguration)

	f.sink.EXPECT().EnsureContainer(gomock.Any(), "Telegram Videos").Return("folder-1", nil).Times(1)
	req.NoError(p.Prepare(context.Background(), "Telegram Videos"))
}
