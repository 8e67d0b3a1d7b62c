// Package model wraps the pretrained object detector used by the service.
//
// The detector is loaded once at startup into a Handle. A Handle always exists,
// even when loading failed, so request handlers can report the failure instead
// of the process refusing to start.
package model

import (
	"WeaponGuard/internal/entity"
	"context"
	"fmt"
	"image"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"

	TypeCustom   = "yolov5-custom"
	TypeFallback = "yolov5s-coco"
)

// IModel is a loaded detector. Detect returns boxes in pixels of img.
// Render labels detections[i] with labels[i], falling back to the model's
// own class name when the label is missing.
type IModel interface {
	Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error)
	Render(img image.Image, detections []entity.RawDetection, labels []string) (image.Image, error)
	Close() error
}

type Config struct {
	Backend        string
	ModelPath      string
	FallbackPath   string
	SharedLibPath  string
	InputSize      int
	ScoreThreshold float32
	IoUThreshold   float32
	RemoteURL      string
	// DefaultNames is used for custom weights whose metadata has no class names.
	DefaultNames []string
	// Palette holds RGB box colours keyed by class name.
	Palette map[string][3]uint8
}

// Handle is the process-wide detector together with its immutable class names.
type Handle struct {
	model     IModel
	names     []string
	modelType string
	err       error
}

func NewHandle(m IModel, names []string, modelType string) *Handle {
	n := make([]string, len(names))
	copy(n, names)
	return &Handle{model: m, names: n, modelType: modelType}
}

func FailedHandle(err error) *Handle {
	return &Handle{err: err}
}

func (h *Handle) Loaded() bool {
	return h != nil && h.model != nil && h.err == nil
}

func (h *Handle) Err() error {
	if h == nil {
		return fmt.Errorf("model handle not initialized")
	}
	return h.err
}

func (h *Handle) Model() IModel {
	if h == nil {
		return nil
	}
	return h.model
}

// Names returns a copy of the model's own index to class-name table.
func (h *Handle) Names() []string {
	if h == nil {
		return nil
	}
	names := make([]string, len(h.names))
	copy(names, h.names)
	return names
}

func (h *Handle) Type() string {
	if h == nil {
		return ""
	}
	return h.modelType
}

func (h *Handle) Close() error {
	if !h.Loaded() {
		return nil
	}
	return h.model.Close()
}

// Load builds the detector described by cfg. It never returns nil; a failed
// load yields a Handle whose Err is set.
func Load(cfg Config, log *logrus.Logger) *Handle {
	var (
		handle *Handle
		err    error
	)

	switch cfg.Backend {
	case BackendRemote:
		handle, err = loadRemote(cfg, log)
	case BackendONNX, "":
		handle, err = loadONNX(cfg, log)
	default:
		err = fmt.Errorf("unknown model backend %q", cfg.Backend)
	}

	if err != nil {
		log.WithFields(logrus.Fields{
			"backend": cfg.Backend,
			"error":   err.Error(),
		}).Error("Failed to load detection model")
		return FailedHandle(err)
	}

	log.WithFields(logrus.Fields{
		"backend":     cfg.Backend,
		"model_type":  handle.Type(),
		"num_classes": len(handle.Names()),
	}).Info("Detection model loaded")

	return handle
}

func loadONNX(cfg Config, log *logrus.Logger) (*Handle, error) {
	path, modelType, defaultNames := cfg.ModelPath, TypeCustom, cfg.DefaultNames
	if _, err := os.Stat(path); err != nil {
		log.WithFields(logrus.Fields{
			"model_path":    cfg.ModelPath,
			"fallback_path": cfg.FallbackPath,
		}).Info("Custom model not found, loading pretrained fallback model")
		path, modelType, defaultNames = cfg.FallbackPath, TypeFallback, YOLOClasses
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no model weights found at %q or %q", cfg.ModelPath, cfg.FallbackPath)
	}

	m, names, err := newONNXModel(path, cfg, log)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = defaultNames
	}
	m.renderer = newRenderer(names, cfg.Palette)

	return NewHandle(m, names, modelType), nil
}

func loadRemote(cfg Config, log *logrus.Logger) (*Handle, error) {
	m, info, err := newRemoteModel(cfg.RemoteURL, cfg.Palette, log)
	if err != nil {
		return nil, err
	}

	modelType := info.ModelType
	if modelType == "" {
		modelType = BackendRemote
	}

	return NewHandle(m, info.Names, modelType), nil
}
