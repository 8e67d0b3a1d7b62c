package config

import (
	"WeaponGuard/database/postgres"
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/middleware"
	"WeaponGuard/pkg/model"
	"WeaponGuard/pkg/redis"
	"WeaponGuard/pkg/s3"
	"WeaponGuard/pkg/utils"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// AppConfig is the process configuration read from the environment.
type AppConfig struct {
	AppPort          string        `validate:"required,numeric"`
	AppEnv           string        `validate:"oneof=development production test"`
	CORSAllowOrigins string        `validate:"required"`
	MaxUploadSizeMB  int           `validate:"min=1,max=200"`
	MaxImagePixels   int64         `validate:"min=1"`
	DetectTimeout    time.Duration `validate:"min=1s"`
	RateLimitRPS     float64       `validate:"gt=0"`
	RateLimitBurst   int           `validate:"min=1"`

	ModelBackend        string `validate:"oneof=onnx remote"`
	ModelPath           string `validate:"required_if=ModelBackend onnx"`
	ModelFallbackPath   string
	OnnxRuntimeLibPath  string
	ModelInputSize      int     `validate:"min=32,max=4096"`
	ModelScoreThreshold float64 `validate:"gt=0,lt=1"`
	ModelIoUThreshold   float64 `validate:"gt=0,lt=1"`
	ModelRemoteURL      string  `validate:"required_if=ModelBackend remote,omitempty,url"`
	ClassOverrides      map[string]string

	DBHost     string
	DBPort     string `validate:"omitempty,numeric"`
	DBUser     string `validate:"required_with=DBHost"`
	DBPassword string
	DBName     string `validate:"required_with=DBHost"`
	DBSSLMode  string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	RedisAddress  string
	RedisPassword string
	RedisDB       int `validate:"min=0"`
	RedisCacheTTL time.Duration

	AWSRegion          string `validate:"required_with=AWSBucketName"`
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string
	AWSEndpoint        string `validate:"omitempty,url"`
}

// LoadConfig reads and validates the configuration. Unset variables take
// their defaults; malformed values are errors.
func LoadConfig(v *validator.Validate) (*AppConfig, error) {
	var errs []string
	env := envReader{errs: &errs}

	cfg := &AppConfig{
		AppPort:          env.String("APP_PORT", "8000"),
		AppEnv:           env.String("APP_ENV", "development"),
		CORSAllowOrigins: env.String("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		MaxUploadSizeMB:  env.Int("MAX_UPLOAD_SIZE_MB", 20),
		MaxImagePixels:   int64(env.Int("MAX_IMAGE_PIXELS", utils.DefaultMaxPixels)),
		DetectTimeout:    env.Duration("DETECT_TIMEOUT", 30*time.Second),
		RateLimitRPS:     env.Float("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   env.Int("RATE_LIMIT_BURST", 10),

		ModelBackend:        env.String("MODEL_BACKEND", model.BackendONNX),
		ModelPath:           env.String("MODEL_PATH", "models/yolov5/best.onnx"),
		ModelFallbackPath:   env.String("MODEL_FALLBACK_PATH", "models/yolov5s.onnx"),
		OnnxRuntimeLibPath:  env.String("ONNXRUNTIME_LIB_PATH", ""),
		ModelInputSize:      env.Int("MODEL_INPUT_SIZE", 640),
		ModelScoreThreshold: env.Float("MODEL_SCORE_THRESHOLD", 0.25),
		ModelIoUThreshold:   env.Float("MODEL_IOU_THRESHOLD", 0.45),
		ModelRemoteURL:      env.String("MODEL_REMOTE_URL", ""),

		DBHost:     env.String("DB_HOST", ""),
		DBPort:     env.String("DB_PORT", "5432"),
		DBUser:     env.String("DB_USER", ""),
		DBPassword: env.String("DB_PASSWORD", ""),
		DBName:     env.String("DB_NAME", ""),
		DBSSLMode:  env.String("DB_SSLMODE", "disable"),

		RedisAddress:  env.String("REDIS_ADDRESS", ""),
		RedisPassword: env.String("REDIS_PASSWORD", ""),
		RedisDB:       env.Int("REDIS_DB", 0),
		RedisCacheTTL: env.Duration("REDIS_CACHE_TTL", time.Hour),

		AWSRegion:          env.String("AWS_REGION", ""),
		AWSAccessKeyID:     env.String("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: env.String("AWS_SECRET_ACCESS_KEY", ""),
		AWSBucketName:      env.String("AWS_BUCKET_NAME", ""),
		AWSEndpoint:        env.String("AWS_ENDPOINT", ""),
	}

	overrides, err := ParseClassOverridesEnv(os.Getenv("CLASS_OVERRIDES"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.ClassOverrides = overrides

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ParseClassOverridesEnv merges CLASS_OVERRIDES over the default override table.
func ParseClassOverridesEnv(raw string) (map[string]string, error) {
	overrides := make(map[string]string, len(weapon.DefaultClassOverrides))
	for k, v := range weapon.DefaultClassOverrides {
		overrides[k] = v
	}

	extra, err := weapon.ParseClassOverrides(raw)
	if err != nil {
		return overrides, fmt.Errorf("CLASS_OVERRIDES: %w", err)
	}
	for k, v := range extra {
		overrides[k] = v
	}

	return overrides, nil
}

func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

func (c *AppConfig) ClassMap() weapon.ClassMap {
	return weapon.NewClassMap(weapon.WeaponClasses, c.ClassOverrides)
}

func (c *AppConfig) ModelConfig() model.Config {
	return model.Config{
		Backend:        c.ModelBackend,
		ModelPath:      c.ModelPath,
		FallbackPath:   c.ModelFallbackPath,
		SharedLibPath:  c.OnnxRuntimeLibPath,
		InputSize:      c.ModelInputSize,
		ScoreThreshold: float32(c.ModelScoreThreshold),
		IoUThreshold:   float32(c.ModelIoUThreshold),
		RemoteURL:      c.ModelRemoteURL,
		DefaultNames:   weapon.WeaponClasses,
		Palette:        weapon.WeaponColors,
	}
}

func (c *AppConfig) MiddlewareConfig() middleware.Config {
	return middleware.Config{
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
	}
}

func (c *AppConfig) DatabaseEnabled() bool { return c.DBHost != "" }

func (c *AppConfig) PostgresConfig() postgres.Config {
	return postgres.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

func (c *AppConfig) RedisEnabled() bool { return c.RedisAddress != "" }

func (c *AppConfig) RedisConfig() redis.Config {
	return redis.Config{
		Address:  c.RedisAddress,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		TTL:      c.RedisCacheTTL,
	}
}

func (c *AppConfig) S3Enabled() bool { return c.AWSBucketName != "" }

func (c *AppConfig) S3Config() s3.Config {
	return s3.Config{
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		BucketName:      c.AWSBucketName,
		Endpoint:        c.AWSEndpoint,
	}
}

type envReader struct {
	errs *[]string
}

func (r envReader) String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r envReader) Int(key string, def int) int {
	raw := r.String(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return def
	}
	return v
}

func (r envReader) Float(key string, def float64) float64 {
	raw := r.String(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Sprintf("%s: %q is not a number", key, raw))
		return def
	}
	return v
}

// Duration accepts Go durations ("30s") or plain seconds ("30").
func (r envReader) Duration(key string, def time.Duration) time.Duration {
	raw := r.String(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Sprintf("%s: %q is not a duration", key, raw))
		return def
	}
	return v
}
