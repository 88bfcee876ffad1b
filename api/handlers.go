package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"teledrive/pkg/batch"
	"teledrive/pkg/models"
	"teledrive/pkg/runner"
)

// Runner is the run controller surface the handlers use
type Runner interface {
	Trigger() (runner.TriggerResult, error)
	StartMonitor(interval time.Duration) error
	StopMonitor() error
	Running() bool
	Monitoring() bool
	Progress() models.ProgressSnapshot
	TrackerSummary() models.TrackerSummary
	LastRun() *models.BatchRun
	RecentErrors() []batch.RunError
}

// CredentialChecker reports whether sink credentials are present
type CredentialChecker interface {
	Available() bool
}

// CredentialFunc adapts a plain function to CredentialChecker
type CredentialFunc func() bool

func (f CredentialFunc) Available() bool { return f() }

// NextRunner exposes the next cron fire time
type NextRunner interface {
	NextRun() time.Time
}

// Handlers serves the status API
type Handlers struct {
	runner      Runner
	credentials CredentialChecker
	schedule    NextRunner
	chat        string
	sink        string
	startedAt   time.Time
}

// envelope is the response shape every endpoint shares
type envelope struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func success(c *gin.Context, code int, data any) {
	c.JSON(code, envelope{Status: "success", Data: data, Timestamp: time.Now()})
}

func failure(c *gin.Context, code int, status, message string) {
	c.JSON(code, envelope{Status: status, Message: message, Timestamp: time.Now()})
}

// MonitorRequest starts periodic runs
type MonitorRequest struct {
	IntervalSeconds int `json:"interval_seconds" binding:"required,min=1"`
}

// HealthResponse is the /health payload
type HealthResponse struct {
	ServerStatus   string `json:"server_status"`
	Credentials    bool   `json:"credentials"`
	ProcessRunning bool   `json:"process_running"`
	Monitoring     bool   `json:"monitoring"`
	ServerUptime   string `json:"server_uptime"`
}

// StatusResponse is the /status payload
type StatusResponse struct {
	Running      bool                    `json:"running"`
	Monitoring   bool                    `json:"monitoring"`
	Progress     models.ProgressSnapshot `json:"progress"`
	LastRun      *models.BatchRun        `json:"last_run"`
	RecentErrors []batch.RunError        `json:"recent_errors"`
	NextRun      *time.Time              `json:"next_scheduled_run"`
}

// ProgressResponse adds derived fields to the snapshot
type ProgressResponse struct {
	models.ProgressSnapshot
	Percent    float64 `json:"percent"`
	BytesHuman string  `json:"bytes_human"`
}

// StatsResponse is the /stats payload
type StatsResponse struct {
	models.TrackerSummary
	TotalSizeHuman string `json:"total_size_human"`
}

// Home describes the API
func (h *Handlers) Home(c *gin.Context) {
	success(c, http.StatusOK, gin.H{
		"message": "Telegram video uploader API",
		"chat":    h.chat,
		"sink":    h.sink,
		"endpoints": gin.H{
			"GET /":               "API information",
			"GET /health":         "Credentials check and run state",
			"GET /progress":       "Live progress of the current run",
			"GET /status":         "Run state, last run and recent errors",
			"GET /stats":          "Transferred items summary",
			"GET /metrics":        "Prometheus metrics",
			"POST /start-upload":  "Start one run",
			"POST /monitor/start": "Run repeatedly every interval_seconds",
			"POST /monitor/stop":  "Stop the monitor after the current item",
		},
	})
}

// Health reports credentials presence and whether a run is active
func (h *Handlers) Health(c *gin.Context) {
	creds := h.credentials != nil && h.credentials.Available()
	success(c, http.StatusOK, HealthResponse{
		ServerStatus:   "running",
		Credentials:    creds,
		ProcessRunning: h.runner.Running(),
		Monitoring:     h.runner.Monitoring(),
		ServerUptime:   time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Progress returns the latest snapshot
func (h *Handlers) Progress(c *gin.Context) {
	snap := h.runner.Progress()
	success(c, http.StatusOK, ProgressResponse{
		ProgressSnapshot: snap,
		Percent:          snap.Percent(),
		BytesHuman:       humanize.Bytes(uint64(max(snap.BytesMoved, 0))) + " / " + humanize.Bytes(uint64(max(snap.BytesTotal, 0))),
	})
}

// Status returns run state, the last finished run and recent run errors
func (h *Handlers) Status(c *gin.Context) {
	resp := StatusResponse{
		Running:      h.runner.Running(),
		Monitoring:   h.runner.Monitoring(),
		Progress:     h.runner.Progress(),
		LastRun:      h.runner.LastRun(),
		RecentErrors: h.runner.RecentErrors(),
	}
	if resp.RecentErrors == nil {
		resp.RecentErrors = []batch.RunError{}
	}
	if h.schedule != nil {
		if next := h.schedule.NextRun(); !next.IsZero() {
			resp.NextRun = &next
		}
	}
	success(c, http.StatusOK, resp)
}

// Stats summarizes the tracker
func (h *Handlers) Stats(c *gin.Context) {
	summary := h.runner.TrackerSummary()
	if summary.RecentKeys == nil {
		summary.RecentKeys = []string{}
	}
	success(c, http.StatusOK, StatsResponse{
		TrackerSummary: summary,
		TotalSizeHuman: humanize.Bytes(uint64(max(summary.TotalSize, 0))),
	})
}

// StartUpload triggers one run unless one is already active
func (h *Handlers) StartUpload(c *gin.Context) {
	res, err := h.runner.Trigger()
	if errors.Is(err, runner.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, envelope{
			Status:    runner.StatusAlreadyRunning,
			Data:      res,
			Message:   "a transfer run is already active",
			Timestamp: time.Now(),
		})
		return
	}
	if err != nil {
		failure(c, http.StatusInternalServerError, "error", err.Error())
		return
	}
	success(c, http.StatusOK, res)
}

// StartMonitor starts periodic runs
func (h *Handlers) StartMonitor(c *gin.Context) {
	var req MonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "error", err.Error())
		return
	}

	interval := time.Duration(req.IntervalSeconds) * time.Second
	if err := h.runner.StartMonitor(interval); err != nil {
		if errors.Is(err, runner.ErrAlreadyRunning) {
			failure(c, http.StatusConflict, runner.StatusAlreadyRunning, err.Error())
			return
		}
		failure(c, http.StatusBadRequest, "error", err.Error())
		return
	}
	success(c, http.StatusOK, gin.H{"monitoring": true, "interval": interval.String()})
}

// StopMonitor stops the monitor after the item in flight
func (h *Handlers) StopMonitor(c *gin.Context) {
	if err := h.runner.StopMonitor(); err != nil {
		if errors.Is(err, runner.ErrNotMonitoring) {
			failure(c, http.StatusConflict, "not_monitoring", err.Error())
			return
		}
		failure(c, http.StatusInternalServerError, "error", err.Error())
		return
	}
	success(c, http.StatusOK, gin.H{"monitoring": false})
}
