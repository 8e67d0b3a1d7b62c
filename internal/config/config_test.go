package config

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/pkg/model"
	"WeaponGuard/pkg/utils"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_PORT", "APP_ENV", "CORS_ALLOW_ORIGINS", "MAX_UPLOAD_SIZE_MB", "MAX_IMAGE_PIXELS", "DETECT_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MODEL_BACKEND", "MODEL_PATH", "MODEL_REMOTE_URL",
	"MODEL_INPUT_SIZE", "MODEL_SCORE_THRESHOLD", "MODEL_IOU_THRESHOLD", "CLASS_OVERRIDES",
	"DB_HOST", "DB_USER", "DB_NAME", "DB_PORT", "REDIS_ADDRESS", "REDIS_CACHE_TTL",
	"AWS_BUCKET_NAME", "AWS_REGION", "AWS_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(NewValidator())
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.AppPort)
	assert.Equal(t, "http://localhost:5173", cfg.CORSAllowOrigins)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes())
	assert.Equal(t, int64(utils.DefaultMaxPixels), cfg.MaxImagePixels)
	assert.Equal(t, 30*time.Second, cfg.DetectTimeout)
	assert.Equal(t, model.BackendONNX, cfg.ModelBackend)
	assert.Equal(t, 640, cfg.ModelInputSize)
	assert.Equal(t, weapon.DefaultClassOverrides, cfg.ClassOverrides)

	assert.False(t, cfg.DatabaseEnabled())
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.S3Enabled())

	mc := cfg.ModelConfig()
	assert.Equal(t, weapon.WeaponClasses, mc.DefaultNames)
	assert.InDelta(t, 0.45, mc.IoUThreshold, 1e-6)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric port", map[string]string{"APP_PORT": "http"}},
		{"bad integer", map[string]string{"MAX_UPLOAD_SIZE_MB": "twenty"}},
		{"bad duration", map[string]string{"DETECT_TIMEOUT": "soon"}},
		{"zero pixel budget", map[string]string{"MAX_IMAGE_PIXELS": "0"}},
		{"unknown backend", map[string]string{"MODEL_BACKEND": "tensorflow"}},
		{"remote without url", map[string]string{"MODEL_BACKEND": "remote"}},
		{"threshold out of range", map[string]string{"MODEL_SCORE_THRESHOLD": "1.5"}},
		{"database without user", map[string]string{"DB_HOST": "localhost", "DB_NAME": "weaponguard"}},
		{"bucket without region", map[string]string{"AWS_BUCKET_NAME": "annotated"}},
		{"malformed overrides", map[string]string{"CLASS_OVERRIDES": "knife"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig(NewValidator())
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadConfigInfrastructure(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "guard")
	t.Setenv("DB_NAME", "weaponguard")
	t.Setenv("REDIS_ADDRESS", "cache:6379")
	t.Setenv("REDIS_CACHE_TTL", "120")
	t.Setenv("AWS_BUCKET_NAME", "annotated")
	t.Setenv("AWS_REGION", "ap-southeast-1")
	t.Setenv("AWS_ENDPOINT", "http://minio:9000")
	t.Setenv("MODEL_BACKEND", "remote")
	t.Setenv("MODEL_REMOTE_URL", "ws://inference:8765")

	cfg, err := LoadConfig(NewValidator())
	require.NoError(t, err)

	assert.True(t, cfg.DatabaseEnabled())
	assert.Equal(t, "5432", cfg.PostgresConfig().Port)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 2*time.Minute, cfg.RedisConfig().TTL)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "http://minio:9000", cfg.S3Config().Endpoint)
	assert.Equal(t, "ws://inference:8765", cfg.ModelConfig().RemoteURL)
}

func TestParseClassOverridesEnv(t *testing.T) {
	overrides, err := ParseClassOverridesEnv("baseball bat=sword, scissors=")
	require.NoError(t, err)

	assert.Equal(t, "sword", overrides["baseball bat"])
	assert.Equal(t, "", overrides["scissors"])
	assert.Contains(t, overrides, "person")

	// defaults are copied, never mutated
	assert.Equal(t, "knife", weapon.DefaultClassOverrides["scissors"])
}

func TestNewValidatorUsesQueryNames(t *testing.T) {
	err := NewValidator().Struct(weapon.ListDetectionsQuery{Limit: 500})
	require.Error(t, err)

	var fieldErrs validator.ValidationErrors
	require.True(t, errors.As(err, &fieldErrs))
	assert.Equal(t, "limit", fieldErrs[0].Field())
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig("http://localhost:5173").AllowCredentials)
	assert.False(t, corsConfig("*").AllowCredentials)
}
