package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const reportKeyPrefix = "weaponguard:detect:"

var ErrCacheMiss = errors.New("cache miss")

type IRedis interface {
	GetReport(ctx context.Context, hash string) ([]byte, error)
	SetReport(ctx context.Context, hash string, report []byte) error
	Close() error
}

type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type redisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg Config) IRedis {
	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, cfg.TTL)
}

func NewWithClient(client *redis.Client, ttl time.Duration) IRedis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisClient{client: client, ttl: ttl}
}

// ReportKey is the cache key of a detection report for an upload with the
// given content hash.
func ReportKey(hash string) string {
	return reportKeyPrefix + hash
}

func (r *redisClient) GetReport(ctx context.Context, hash string) ([]byte, error) {
	key := ReportKey(hash)
	logrus.Debug(fmt.Sprintf("Getting report for key %s", key))

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Report not found for key %s", key))
		return nil, ErrCacheMiss
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting report for key %s: %v", key, err))
		return nil, err
	}

	return val, nil
}

func (r *redisClient) SetReport(ctx context.Context, hash string, report []byte) error {
	key := ReportKey(hash)
	logrus.Debug(fmt.Sprintf("Setting report for key %s with expiration %v", key, r.ttl))

	if err := r.client.Set(ctx, key, report, r.ttl).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error setting report for key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
