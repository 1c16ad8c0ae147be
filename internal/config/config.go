package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const EnvPrefix = "PIXELBATCH"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Batch     BatchConfig     `mapstructure:"batch"`
	Transform TransformConfig `mapstructure:"transform"`
	Log       LogConfig       `mapstructure:"log"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Claim     ClaimConfig     `mapstructure:"claim"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type BatchConfig struct {
	Input       string `mapstructure:"input" validate:"required"`
	Output      string `mapstructure:"output" validate:"required"`
	Recursive   bool   `mapstructure:"recursive"`
	Workers     int    `mapstructure:"workers" validate:"gte=0"`
	FailOnError bool   `mapstructure:"fail_on_error"`
}

type TransformConfig struct {
	Width          int     `mapstructure:"width" validate:"gte=0"`
	Height         int     `mapstructure:"height" validate:"gte=0"`
	Resize         string  `mapstructure:"resize"`
	Filter         string  `mapstructure:"filter"`
	Format         string  `mapstructure:"format"`
	Quality        float64 `mapstructure:"quality" validate:"gte=1,lte=100"`
	Speed          int     `mapstructure:"speed" validate:"gte=1,lte=10"`
	Rotation       string  `mapstructure:"rotation"`
	FlipHorizontal bool    `mapstructure:"flip_horizontal"`
	FlipVertical   bool    `mapstructure:"flip_vertical"`
}

// Options resolves the textual settings into the closed enumerations.
func (t TransformConfig) Options() domain.TransformOptions {
	return domain.TransformOptions{
		Width:          t.Width,
		Height:         t.Height,
		Resize:         domain.ParseResizePolicy(t.Resize),
		Filter:         domain.ParseFilter(t.Filter),
		Format:         domain.ParseFormat(t.Format),
		Quality:        float32(t.Quality),
		Speed:          t.Speed,
		Rotation:       domain.ParseRotation(t.Rotation),
		FlipHorizontal: t.FlipHorizontal,
		FlipVertical:   t.FlipVertical,
	}
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Name          string `mapstructure:"name"`
	// Rate caps enqueue submissions per second across all enqueuers; 0 is
	// unlimited.
	Rate          int    `mapstructure:"rate" validate:"gte=0"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

func (q QueueConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency" validate:"gte=0"`
	OutputDir   string `mapstructure:"output_dir"`
}

type ClaimConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether outputs should be mirrored to object storage.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type WebhookConfig struct {
	URL           string        `mapstructure:"url" validate:"omitempty,url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	Exporter     string `mapstructure:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// New returns a viper instance with defaults and PIXELBATCH_* environment
// lookups applied. Flags may be bound into it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	defaults := domain.DefaultTransformOptions()

	v.SetDefault("batch.input", "")
	v.SetDefault("batch.output", "")
	v.SetDefault("batch.recursive", false)
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.fail_on_error", false)

	v.SetDefault("transform.width", 0)
	v.SetDefault("transform.height", 0)
	v.SetDefault("transform.resize", defaults.Resize.String())
	v.SetDefault("transform.filter", defaults.Filter.String())
	v.SetDefault("transform.format", "")
	v.SetDefault("transform.quality", float64(defaults.Quality))
	v.SetDefault("transform.speed", defaults.Speed)
	v.SetDefault("transform.rotation", "")
	v.SetDefault("transform.flip_horizontal", false)
	v.SetDefault("transform.flip_vertical", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", false)

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.rate", 0)

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.output_dir", "")

	v.SetDefault("claim.enabled", false)
	v.SetDefault("claim.ttl", 10*time.Minute)
	v.SetDefault("claim.prefix", "pixelbatch:claim")

	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "outputs")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("database.dsn", "")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.signing_secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)

	v.SetDefault("telemetry.service_name", "pixelbatch")
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)

	v.SetDefault("metrics.addr", "")
}

// Load reads the optional config file and unmarshals every section. It does
// not validate; callers pick the sections they need.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks everything a local batch run or an enqueue run depends on.
func (c Config) Validate() error {
	for _, section := range []any{c.Batch, c.Transform, c.Log, c.Queue, c.Webhook, c.Telemetry} {
		if err := validateStruct(section); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWorker checks the sections a queue worker depends on.
func (c Config) ValidateWorker() error {
	for _, section := range []any{c.Worker, c.Log, c.Telemetry} {
		if err := validateStruct(section); err != nil {
			return err
		}
	}
	return nil
}

func validateStruct(section any) error {
	err := validate.Struct(section)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
