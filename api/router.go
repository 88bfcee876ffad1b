package api

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Options configure the router
type Options struct {
	Runner      Runner
	Credentials CredentialChecker
	Schedule    NextRunner // nil when no cron schedule is configured
	Metrics     http.Handler
	Chat        string
	Sink        string
	// AllowOrigins defaults to any origin
	AllowOrigins []string
	Log          *slog.Logger
}

// SetupRouter creates and configures the Gin router
func SetupRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.CustomRecovery(recovered(opts.Log)), requestLogger(opts.Log))

	config := cors.DefaultConfig()
	if len(opts.AllowOrigins) > 0 {
		config.AllowOrigins = opts.AllowOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	h := &Handlers{
		runner:      opts.Runner,
		credentials: opts.Credentials,
		schedule:    opts.Schedule,
		chat:        opts.Chat,
		sink:        opts.Sink,
		startedAt:   time.Now(),
	}

	router.GET("/", h.Home)
	router.GET("/health", h.Health)
	router.GET("/progress", h.Progress)
	router.GET("/status", h.Status)
	router.GET("/stats", h.Stats)
	router.POST("/start-upload", h.StartUpload)

	monitor := router.Group("/monitor")
	{
		monitor.POST("/start", h.StartMonitor)
		monitor.POST("/stop", h.StopMonitor)
	}

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	endpoints := make([]string, 0, len(router.Routes()))
	for _, r := range router.Routes() {
		endpoints = append(endpoints, r.Method+" "+r.Path)
	}
	sort.Strings(endpoints)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, envelope{
			Status:    "error",
			Message:   "Endpoint not found",
			Data:      gin.H{"available_endpoints": endpoints},
			Timestamp: time.Now(),
		})
	})
	router.NoMethod(func(c *gin.Context) {
		failure(c, http.StatusMethodNotAllowed, "error", "Method "+c.Request.Method+" not allowed")
	})

	return router
}

// recovered turns a handler panic into a JSON 500
func recovered(log *slog.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, err any) {
		if log != nil {
			log.Error("Handler panicked", "path", c.Request.URL.Path, "error", err)
		}
		failure(c, http.StatusInternalServerError, "error", "Internal server error")
		c.Abort()
	}
}

// requestLogger logs each request at debug level; polling endpoints are noisy
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}
		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
