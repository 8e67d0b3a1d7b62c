package weaponHandler

import (
	"WeaponGuard/internal/api/weapon"
	contextPkg "WeaponGuard/pkg/context"
	"WeaponGuard/pkg/handlerUtil"
	"WeaponGuard/pkg/log"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *WeaponHandler) ListDetections(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var query weapon.ListDetectionsQuery
	if err := ctx.QueryParser(&query); err != nil {
		return errHandler.Handle(ctx, requestID, weapon.ErrInvalidQuery, ctx.Path(), "parse_query")
	}

	if err := h.validator.Struct(query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	result, err := h.weaponService.ListDetections(c, query)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_detections")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"path":       ctx.Path(),
			"count":      len(result.Data),
		}).Debug("Detection history listed")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *WeaponHandler) GetDetection(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	id := ctx.Params("id")
	if id == "" {
		return errHandler.HandleValidationError(ctx, requestID,
			errors.New("detection ID is required"), ctx.Path())
	}

	result, err := h.weaponService.GetDetection(c, id)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_detection")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, fiber.Map{
			"data": result,
		})
	}
}

func (h *WeaponHandler) GetStats(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	result, err := h.weaponService.GetStats(c)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_stats")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}
