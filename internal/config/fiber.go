package config

import (
	"WeaponGuard/internal/api/weapon"
	"WeaponGuard/internal/middleware"
	"WeaponGuard/pkg/handlerUtil"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// multipartOverhead leaves room for form boundaries and headers above the file limit.
const multipartOverhead = 1024 * 1024

func NewFiber(logger *logrus.Logger, cfg *AppConfig) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "WeaponGuard",
			BodyLimit:         int(cfg.MaxUploadBytes()) + multipartOverhead,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: cfg.AppEnv == "development",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      errorHandler(logger),
		})

	app.Use(recover.New())
	app.Use(cors.New(corsConfig(cfg.CORSAllowOrigins)))

	logger.Debugf("CORS allowed origins: %s", cfg.CORSAllowOrigins)
	return app
}

// errorHandler renders errors that escape the handlers, including requests
// fasthttp rejects before routing, in the same JSON shape as handler errors.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	errHandler := handlerUtil.New(logger)

	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals(middleware.RequestIDKey).(string)
		if requestID == "" {
			requestID = c.Get(middleware.RequestIDKey)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code == fiber.StatusRequestEntityTooLarge {
			err = weapon.ErrFileTooLarge
		}

		return errHandler.Handle(c, requestID, err, c.Path(), "request")
	}
}

func corsConfig(origins string) cors.Config {
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: !strings.Contains(origins, "*"),
	}
}
