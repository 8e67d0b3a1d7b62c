package config

import (
	"WeaponGuard/database/postgres"
	weaponHandler "WeaponGuard/internal/api/weapon/handler"
	weaponRepository "WeaponGuard/internal/api/weapon/repository"
	weaponService "WeaponGuard/internal/api/weapon/service"
	"WeaponGuard/internal/middleware"
	"WeaponGuard/pkg/model"
	"WeaponGuard/pkg/redis"
	"WeaponGuard/pkg/s3"
	"WeaponGuard/pkg/utils"
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine        *fiber.App
	config        *AppConfig
	db            *sqlx.DB
	log           *logrus.Logger
	middleware    middleware.Middleware
	validator     *validator.Validate
	utils         utils.IUtils
	model         *model.Handle
	weaponHandler *weaponHandler.WeaponHandler
	handlers      []handler
	redisServer   redis.IRedis
	s3Client      s3.ItfS3
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if server.model == nil {
		return nil, fmt.Errorf("model handle is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		s.config = cfg
		return nil
	}
}

func WithModel(handle *model.Handle) ServerOption {
	return func(s *Server) error {
		s.model = handle
		return nil
	}
}

// WithDatabase connects and migrates only when DB_HOST is set.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be set before database")
		}
		if !s.config.DatabaseEnabled() {
			s.log.Info("DB_HOST not set, detection history disabled")
			return nil
		}

		db, err := postgres.New(s.config.PostgresConfig())
		if err != nil {
			s.log.Errorf("Failed to connect to database: %v", err)
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgres.Migrate(ctx, db); err != nil {
			s.log.Errorf("Failed to migrate database: %v", err)
			_ = db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		s.log.Info("Database connected and migrated")
		s.db = db
		return nil
	}
}

func WithRedisServer() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be set before redis")
		}
		if !s.config.RedisEnabled() {
			s.log.Info("REDIS_ADDRESS not set, detection cache disabled")
			return nil
		}

		s.redisServer = redis.New(s.config.RedisConfig())
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be set before S3")
		}
		if !s.config.S3Enabled() {
			s.log.Info("AWS_BUCKET_NAME not set, annotated image storage disabled")
			return nil
		}

		client, err := s3.New(s.config.S3Config())
		if err != nil {
			s.log.Errorf("Failed to initialize S3 client: %v", err)
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.config == nil {
			return fmt.Errorf("config must be set before middleware")
		}
		s.middleware = middleware.New(s.log, s.config.MiddlewareConfig())
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be set before utils")
		}
		s.utils = utils.New(s.config.MaxUploadBytes(), s.config.MaxImagePixels)
		return nil
	}
}

func (s *Server) RegisterHandler() {
	var repo weaponRepository.Repository
	if s.db != nil {
		repo = weaponRepository.New(s.db, s.log)
	}

	// Weapon Detection
	weaponServices := weaponService.NewWeaponService(
		s.log, s.model, s.config.ClassMap(), s.utils, repo, s.redisServer, s.s3Client,
	)
	s.weaponHandler = weaponHandler.New(
		s.log, s.validator, s.middleware, weaponServices, s.utils, s.config.DetectTimeout,
	)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.setupHealthCheck()
	s.handlers = append(s.handlers, s.weaponHandler)
}

func (s *Server) Run() error {
	for _, h := range s.handlers {
		h.Start(s.engine)
	}

	return s.engine.Listen(fmt.Sprintf(":%s", s.config.AppPort))
}

// Shutdown stops accepting requests and releases the model and infra clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(s.engine.ShutdownWithContext(ctx))
	keep(s.model.Close())
	if s.db != nil {
		keep(s.db.Close())
	}
	if s.redisServer != nil {
		keep(s.redisServer.Close())
	}

	return firstErr
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", s.weaponHandler.Root)
	s.engine.Get("/health", s.weaponHandler.Health)
}
