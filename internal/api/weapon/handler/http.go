package weaponHandler

import (
	weaponService "WeaponGuard/internal/api/weapon/service"
	"WeaponGuard/internal/middleware"
	"WeaponGuard/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const defaultDetectTimeout = 30 * time.Second

type WeaponHandler struct {
	log           *logrus.Logger
	validator     *validator.Validate
	middleware    middleware.Middleware
	weaponService weaponService.IWeaponService
	utils         utils.IUtils
	detectTimeout time.Duration
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ws weaponService.IWeaponService,
	utils utils.IUtils,
	detectTimeout time.Duration,
) *WeaponHandler {
	if detectTimeout <= 0 {
		detectTimeout = defaultDetectTimeout
	}

	return &WeaponHandler{
		log:           log,
		validator:     validator,
		middleware:    middleware,
		weaponService: ws,
		utils:         utils,
		detectTimeout: detectTimeout,
	}
}

func (h *WeaponHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Post("/detect", h.middleware.NewRateLimiter, h.Detect)

	srv.Use("/detect/ws", wsMiddleware)
	srv.Get("/detect/ws", websocket.New(h.handleStream))

	srv.Get("/detections", h.ListDetections)
	srv.Get("/detections/stats", h.GetStats)
	srv.Get("/detections/:id", h.GetDetection)
}
