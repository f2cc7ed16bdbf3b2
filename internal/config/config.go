package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	IMAP      IMAPConfig      `mapstructure:"imap"`
	Engine    EngineConfig    `mapstructure:"engine"`
	BlobStore BlobStoreConfig `mapstructure:"blobstore"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// SMTPConfig holds mail submission configuration. Submission uses implicit
// TLS on the configured port (465 by default).
type SMTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// IMAPConfig holds mailbox read configuration for the reconciliation poller.
type IMAPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Mailbox            string        `mapstructure:"mailbox"`
	Timeout            time.Duration `mapstructure:"timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	SearchWindow       time.Duration `mapstructure:"search_window"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// EngineConfig holds delivery engine loop configuration.
type EngineConfig struct {
	DispatchIdle    time.Duration `mapstructure:"dispatch_idle"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BlobStoreConfig holds attachment storage configuration.
type BlobStoreConfig struct {
	Type       string `mapstructure:"type"` // "local" or "s3"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix MAIL_SCHEDULER_ override file values.
// For example, MAIL_SCHEDULER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAIL_SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the engine's documented defaults so a minimal config
// file only needs database credentials and mail endpoints.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 15*time.Second)
	v.SetDefault("api.write_timeout", 15*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.timeout", 30*time.Second)
	v.SetDefault("smtp.insecure_skip_verify", false)

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.timeout", 30*time.Second)
	v.SetDefault("imap.poll_interval", 120*time.Second)
	v.SetDefault("imap.search_window", 7*24*time.Hour)
	v.SetDefault("imap.insecure_skip_verify", false)

	v.SetDefault("engine.dispatch_idle", 1*time.Second)
	v.SetDefault("engine.shutdown_timeout", 30*time.Second)

	v.SetDefault("blobstore.type", "local")
	v.SetDefault("blobstore.path", "data/attachments")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
}
