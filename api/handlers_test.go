package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"teledrive/pkg/batch"
	"teledrive/pkg/models"
	"teledrive/pkg/runner"
)

type fakeRunner struct {
	mu         sync.Mutex
	running    bool
	monitoring bool
	interval   time.Duration
	snap       models.ProgressSnapshot
	summary    models.TrackerSummary
	last       *models.BatchRun
	errs       []batch.RunError
}

func (f *fakeRunner) Trigger() (runner.TriggerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return runner.TriggerResult{Status: runner.StatusAlreadyRunning}, runner.ErrAlreadyRunning
	}
	f.running = true
	return runner.TriggerResult{Status: runner.StatusStarted, RunID: "run-1"}, nil
}

func (f *fakeRunner) StartMonitor(interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return runner.ErrAlreadyRunning
	}
	f.running, f.monitoring, f.interval = true, true, interval
	return nil
}

func (f *fakeRunner) StopMonitor() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.monitoring {
		return runner.ErrNotMonitoring
	}
	f.running, f.monitoring = false, false
	return nil
}

func (f *fakeRunner) Running() bool                         { return f.running }
func (f *fakeRunner) Monitoring() bool                      { return f.monitoring }
func (f *fakeRunner) Progress() models.ProgressSnapshot     { return f.snap }
func (f *fakeRunner) TrackerSummary() models.TrackerSummary { return f.summary }
func (f *fakeRunner) LastRun() *models.BatchRun             { return f.last }
func (f *fakeRunner) RecentErrors() []batch.RunError        { return f.errs }

type fixedSchedule time.Time

func (s fixedSchedule) NextRun() time.Time { return time.Time(s) }

type response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestRouter(r Runner, opts ...func(*Options)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	o := Options{
		Runner:      r,
		Credentials: CredentialFunc(func() bool { return true }),
		Chat:        "mychannel",
		Sink:        "drive",
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return SetupRouter(o)
}

func do(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp response
	if w.Header().Get("Content-Type") != "" && path != "/metrics" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestStartUpload_SecondCallConflicts(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&fakeRunner{})

	w, resp := do(t, router, http.MethodPost, "/start-upload", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Equal("success", resp.Status)

	var started runner.TriggerResult
	req.NoError(json.Unmarshal(resp.Data, &started))
	req.Equal(runner.StatusStarted, started.Status)
	req.Equal("run-1", started.RunID)

	w, resp = do(t, router, http.MethodPost, "/start-upload", nil)
	req.Equal(http.StatusConflict, w.Code)
	req.Equal(runner.StatusAlreadyRunning, resp.Status)
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&fakeRunner{running: true}, func(o *Options) {
		o.Credentials = CredentialFunc(func() bool { return false })
	})

	w, resp := do(t, router, http.MethodGet, "/health", nil)
	req.Equal(http.StatusOK, w.Code)

	var health HealthResponse
	req.NoError(json.Unmarshal(resp.Data, &health))
	req.Equal("running", health.ServerStatus)
	req.False(health.Credentials)
	req.True(health.ProcessRunning)
}

func TestProgress_ReturnsSnapshot(t *testing.T) {
	req := require.New(t)
	name := "video_3.mp4"
	router := newTestRouter(&fakeRunner{snap: models.ProgressSnapshot{
		Phase:       models.PhaseTransferringOut,
		CurrentItem: &name,
		BytesTotal:  200,
		BytesMoved:  150,
	}})

	w, resp := do(t, router, http.MethodGet, "/progress", nil)
	req.Equal(http.StatusOK, w.Code)

	var got ProgressResponse
	req.NoError(json.Unmarshal(resp.Data, &got))
	req.Equal(models.PhaseTransferringOut, got.Phase)
	req.Equal("video_3.mp4", *got.CurrentItem)
	req.InDelta(75.0, got.Percent, 0.001)
}

func TestStatus_IncludesLastRunAndNextSchedule(t *testing.T) {
	req := require.New(t)
	next := time.Date(2030, 1, 1, 3, 0, 0, 0, time.UTC)
	fr := &fakeRunner{
		last: &models.BatchRun{ID: "abc", SucceededCount: 4, FailedCount: 1},
		errs: []batch.RunError{{RunID: "abc", Message: "enumeration failed"}},
	}
	router := newTestRouter(fr, func(o *Options) { o.Schedule = fixedSchedule(next) })

	w, resp := do(t, router, http.MethodGet, "/status", nil)
	req.Equal(http.StatusOK, w.Code)

	var status StatusResponse
	req.NoError(json.Unmarshal(resp.Data, &status))
	req.NotNil(status.LastRun)
	req.Equal(4, status.LastRun.SucceededCount)
	req.Len(status.RecentErrors, 1)
	req.NotNil(status.NextRun)
	req.True(next.Equal(*status.NextRun))
}

func TestStats(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&fakeRunner{summary: models.TrackerSummary{
		Count:      2,
		TotalSize:  2048,
		RecentKeys: []string{"tg:chan:2", "tg:chan:1"},
	}})

	w, resp := do(t, router, http.MethodGet, "/stats", nil)
	req.Equal(http.StatusOK, w.Code)

	var stats StatsResponse
	req.NoError(json.Unmarshal(resp.Data, &stats))
	req.Equal(2, stats.Count)
	req.Equal([]string{"tg:chan:2", "tg:chan:1"}, stats.RecentKeys)
	req.Equal("2.0 kB", stats.TotalSizeHuman)
}

func TestMonitor_StartStop(t *testing.T) {
	req := require.New(t)
	fr := &fakeRunner{}
	router := newTestRouter(fr)

	w, _ := do(t, router, http.MethodPost, "/monitor/start", map[string]int{"interval_seconds": 0})
	req.Equal(http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPost, "/monitor/start", map[string]int{"interval_seconds": 30})
	req.Equal(http.StatusOK, w.Code)
	req.Equal(30*time.Second, fr.interval)

	w, _ = do(t, router, http.MethodPost, "/monitor/start", map[string]int{"interval_seconds": 30})
	req.Equal(http.StatusConflict, w.Code)

	w, _ = do(t, router, http.MethodPost, "/monitor/stop", nil)
	req.Equal(http.StatusOK, w.Code)

	w, resp := do(t, router, http.MethodPost, "/monitor/stop", nil)
	req.Equal(http.StatusConflict, w.Code)
	req.Equal("not_monitoring", resp.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "teledrive_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	router := newTestRouter(&fakeRunner{}, func(o *Options) {
		o.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	})

	w, _ := do(t, router, http.MethodGet, "/metrics", nil)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), "teledrive_test_total 1")
}

func TestUnknownRoute_ListsEndpoints(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&fakeRunner{})

	w, resp := do(t, router, http.MethodGet, "/nope", nil)
	req.Equal(http.StatusNotFound, w.Code)
	req.Equal("error", resp.Status)
	req.Equal("Endpoint not found", resp.Message)

	var data struct {
		AvailableEndpoints []string `json:"available_endpoints"`
	}
	req.NoError(json.Unmarshal(resp.Data, &data))
	req.Contains(data.AvailableEndpoints, "GET /health")
	req.Contains(data.AvailableEndpoints, "POST /start-upload")
}

func TestWrongMethod_IsJSON405(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&fakeRunner{})

	w, resp := do(t, router, http.MethodGet, "/start-upload", nil)
	req.Equal(http.StatusMethodNotAllowed, w.Code)
	req.Equal("error", resp.Status)
	req.Contains(resp.Message, "GET")
}

type panickingRunner struct{ fakeRunner }

func (*panickingRunner) Progress() models.ProgressSnapshot { panic("reporter gone") }

func TestHandlerPanic_IsJSON500(t *testing.T) {
	req := require.New(t)
	router := newTestRouter(&panickingRunner{})

	w, resp := do(t, router, http.MethodGet, "/progress", nil)
	req.Equal(http.StatusInternalServerError, w.Code)
	req.Equal("error", resp.Status)
	req.Equal("Internal server error", resp.Message)
}
