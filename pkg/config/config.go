package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	SinkDrive = "drive"
	SinkS3    = "s3"
)

// Config holds every tunable of the service. Values come from the
// environment (optionally a .env file); CLI flags override them.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=5000" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	// Telegram source
	TelegramAppID       int    `env:"TELEGRAM_API_ID"`
	TelegramAppHash     string `env:"TELEGRAM_API_HASH"`
	TelegramPhone       string `env:"TELEGRAM_PHONE"`
	TelegramPassword    string `env:"TELEGRAM_2FA_PASSWORD"`
	TelegramSessionFile string `env:"TELEGRAM_SESSION_FILE,default=telegram.session.json"`
	Chat                string `env:"TELEGRAM_CHAT"`
	HistoryBatchSize    int    `env:"TELEGRAM_HISTORY_BATCH,default=100" validate:"min=1,max=100"`

	// Sink selection
	Sink string `env:"SINK,default=drive" validate:"oneof=drive s3"`

	// Google Drive sink
	DriveFolder            string `env:"DRIVE_FOLDER,default=Telegram Videos"`
	DriveCredentialsFile   string `env:"GOOGLE_CREDENTIALS_FILE,default=credentials.json"`
	DriveTokenFile         string `env:"GOOGLE_TOKEN_FILE,default=token.json"`
	DriveServiceAccountKey string `env:"GOOGLE_SERVICE_ACCOUNT_FILE"`

	// S3 sink
	S3       S3Credentials
	S3Bucket string `env:"S3_BUCKET"`
	S3Prefix string `env:"S3_PREFIX,default=telegram-videos/"`

	// Pipeline
	TrackerFile    string        `env:"TRACKER_FILE,default=uploaded_videos.json"`
	TempDir        string        `env:"SPOOL_DIR"`
	ChunkSize      int           `env:"CHUNK_SIZE,default=1048576" validate:"min=262144"`
	MaxSizeBytes   int64         `env:"MAX_SIZE_BYTES,default=0" validate:"min=0"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS,default=3" validate:"min=1,max=20"`
	BackoffBase    time.Duration `env:"BACKOFF_BASE,default=2s"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX,default=1m"`
	ProgressPeriod time.Duration `env:"PROGRESS_PERIOD,default=200ms"`

	// Monitor mode
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL,default=10m"`
	MonitorCron     string        `env:"MONITOR_CRON"`
	RecentErrors    int           `env:"RECENT_ERRORS,default=32" validate:"min=1"`
}

// Load reads .env (when present) then the process environment
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("invalid config: backoff base %s must be positive and not above max %s", c.BackoffBase, c.BackoffMax)
	}
	if c.Sink == SinkS3 && c.S3Bucket == "" {
		return fmt.Errorf("invalid config: S3_BUCKET is required when SINK=s3")
	}
	return nil
}

// ValidateSource checks that the Telegram source can be reached
func (c Config) ValidateSource() error {
	if c.TelegramAppID == 0 || c.TelegramAppHash == "" {
		return fmt.Errorf("TELEGRAM_API_ID and TELEGRAM_API_HASH are required")
	}
	if c.Chat == "" {
		return fmt.Errorf("TELEGRAM_CHAT is required")
	}
	return nil
}

// Container is the sink-side container name for the configured sink
func (c Config) Container() string {
	if c.Sink == SinkS3 {
		return c.S3Bucket
	}
	return c.DriveFolder
}

// Addr is the HTTP listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
