package weaponHandler

import (
	"WeaponGuard/internal/api/weapon"
	contextPkg "WeaponGuard/pkg/context"
	"WeaponGuard/pkg/handlerUtil"
	"WeaponGuard/pkg/log"
	"errors"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

const uploadField = "file"

func (h *WeaponHandler) Detect(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.detectTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile(uploadField)
	if err != nil {
		return errHandler.Handle(ctx, requestID, weapon.ErrNoFile, ctx.Path(), "form_file")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"file_name":  file.Filename,
		"file_size":  file.Size,
	}).Debug("Processing detection upload")

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "validate_image_file")
	}

	data, err := h.utils.ReadImageFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image_file")
	}

	result, err := h.weaponService.Detect(c, weapon.DetectRequest{
		Filename: file.Filename,
		Data:     data,
		Source:   weapon.SourceUpload,
	})
	if err != nil {
		if timedOut(c, err) {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"path":       ctx.Path(),
				"error":      err.Error(),
			}).Warn("Detection did not finish before the request ended")
			return errHandler.HandleRequestTimeout(ctx)
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "detect")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":       requestID,
			"path":             ctx.Path(),
			"threat_level":     result.ThreatLevel,
			"total_detections": result.ProcessingInfo.TotalDetections,
		}).Info("Weapon detection successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

// timedOut reports whether err ended the detection because its context expired
// or was cancelled. Backend errors raised after the deadline count as well.
func timedOut(c context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || c.Err() != nil
}

func (h *WeaponHandler) Root(ctx *fiber.Ctx) error {
	return ctx.JSON(weapon.RootResponse{
		Message:     "Weapon Detection API is running",
		ModelLoaded: h.weaponService.ModelStatus().Loaded,
	})
}

func (h *WeaponHandler) Health(ctx *fiber.Ctx) error {
	status := h.weaponService.ModelStatus()

	health := "healthy"
	if !status.Loaded {
		health = "degraded"
	}

	return ctx.JSON(weapon.HealthResponse{
		Status:        health,
		ModelLoaded:   status.Loaded,
		WeaponClasses: h.weaponService.WeaponClasses(),
	})
}
