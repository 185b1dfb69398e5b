package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"artreview/internal/auth"
	"artreview/internal/service/s3"
)

const envPrefix = "ARTREVIEW"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	S3        s3.Config       `mapstructure:"s3"`
	Auth      auth.Config     `mapstructure:"auth"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	Share     ShareConfig     `mapstructure:"share"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay"`
}

type IngestionConfig struct {
	UploadTimeout      time.Duration `mapstructure:"upload_timeout"`
	CleanupTimeout     time.Duration `mapstructure:"cleanup_timeout"`
	OrphanAge          time.Duration `mapstructure:"orphan_age"`
	MaxSourceBytes     int64         `mapstructure:"max_source_bytes"`
	MaxAudioBytes      int64         `mapstructure:"max_audio_bytes"`
	MaxVersionAttempts int           `mapstructure:"max_version_attempts"`
	PreviewMaxWidth    int           `mapstructure:"preview_max_width"`
	TempDir            string        `mapstructure:"temp_dir"`
}

type ShareConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	SignedURLTTL    time.Duration `mapstructure:"signed_url_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("database.connect_delay", 5*time.Second)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_path_style", true)
	v.SetDefault("s3.verify_bucket", true)

	v.SetDefault("auth.issuer", "artreview")
	v.SetDefault("auth.leeway", 30*time.Second)

	v.SetDefault("ingestion.upload_timeout", 2*time.Minute)
	v.SetDefault("ingestion.cleanup_timeout", 30*time.Second)
	v.SetDefault("ingestion.max_source_bytes", 200<<20)
	v.SetDefault("ingestion.max_audio_bytes", 25<<20)
	v.SetDefault("ingestion.orphan_age", 5*time.Minute)
	v.SetDefault("ingestion.max_version_attempts", 5)
	v.SetDefault("ingestion.preview_max_width", 1280)

	v.SetDefault("share.cleanup_interval", time.Hour)
	v.SetDefault("share.signed_url_ttl", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Keys without a default are bound explicitly so AutomaticEnv sees them on Unmarshal.
var requiredEnv = []string{
	"database.dsn",
	"s3.endpoint",
	"s3.access_key_id",
	"s3.secret_access_key",
	"s3.bucket",
	"s3.public_base_url",
	"auth.secret",
	"auth.redis_url",
	"ingestion.temp_dir",
}

// NewConfig reads path when it exists and overlays ARTREVIEW_* environment
// variables, e.g. ARTREVIEW_DATABASE_DSN for database.dsn.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredEnv {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.ConnectAttempts < 1 {
		return fmt.Errorf("database.connect_attempts must be at least 1")
	}
	if err := c.S3.Validate(); err != nil {
		return fmt.Errorf("s3: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if c.Ingestion.MaxVersionAttempts < 1 {
		return fmt.Errorf("ingestion.max_version_attempts must be at least 1")
	}
	if c.Ingestion.OrphanAge <= c.Ingestion.UploadTimeout+c.Ingestion.CleanupTimeout {
		return fmt.Errorf("ingestion.orphan_age must exceed upload_timeout plus cleanup_timeout")
	}
	if c.Share.CleanupInterval <= 0 {
		return fmt.Errorf("share.cleanup_interval must be positive")
	}
	if c.Share.SignedURLTTL <= 0 || c.Share.SignedURLTTL > 7*24*time.Hour {
		return fmt.Errorf("share.signed_url_ttl must be between 0 and 7 days")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func (c LogConfig) SlogLevel() slog.Level {
	level, _ := parseLevel(c.Level)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
