package main

import (
	"WeaponGuard/internal/config"
	"WeaponGuard/pkg/log"
	"WeaponGuard/pkg/model"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	// .env must be applied before the logger reads APP_ENV and LOG_LEVEL.
	envErr := godotenv.Load()
	logger := log.NewLogger()
	if envErr != nil {
		if !errors.Is(envErr, fs.ErrNotExist) {
			logger.Fatalf("Error loading .env file: %v", envErr)
		}
		logger.Info("No .env file found, using process environment")
	}

	validator := config.NewValidator()
	cfg, err := config.LoadConfig(validator)
	if err != nil {
		logger.Fatal(err)
	}

	handle := model.Load(cfg.ModelConfig(), logger)
	if !handle.Loaded() {
		logger.Errorf("Detector unavailable, /detect will fail until restart: %v", handle.Err())
	}

	fiberApp := config.NewFiber(logger, cfg)

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithConfig(cfg),
		config.WithModel(handle),
		config.WithDatabase(),
		config.WithRedisServer(),
		config.WithS3Client(),
		config.WithMiddleware(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Infof("Server started on port %s", cfg.AppPort)

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
