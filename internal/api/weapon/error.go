package weapon

import (
	"WeaponGuard/pkg/response"
	"net/http"
)

var (
	ErrNoFile             = response.NewError(http.StatusBadRequest, "no file uploaded")
	ErrEmptyFile          = response.NewError(http.StatusBadRequest, "uploaded file is empty")
	ErrFileTooLarge       = response.NewError(http.StatusBadRequest, "uploaded file exceeds size limit")
	ErrInvalidImage       = response.NewError(http.StatusBadRequest, "invalid image file")
	ErrInvalidQuery       = response.NewError(http.StatusBadRequest, "invalid query parameters")
	ErrModelUnavailable   = response.NewError(http.StatusInternalServerError, "model not loaded")
	ErrProcessing         = response.NewError(http.StatusInternalServerError, "detection processing failed")
	ErrDetectionNotFound  = response.NewError(http.StatusNotFound, "detection not found")
	ErrHistoryUnavailable = response.NewError(http.StatusServiceUnavailable, "detection history is not configured")
)
