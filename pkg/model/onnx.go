package model

import (
	"WeaponGuard/internal/entity"
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initEnvironment(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// onnxModel runs YOLO weights exported to ONNX. Input and output tensors are
// bound to the session once, so Detect is serialized.
type onnxModel struct {
	mu             sync.Mutex
	session        *ort.AdvancedSession
	input          *ort.Tensor[float32]
	output         *ort.Tensor[float32]
	outputShape    ort.Shape
	inputSize      int
	scoreThreshold float32
	iouThreshold   float32
	renderer       *renderer
	log            *logrus.Logger
}

func newONNXModel(path string, cfg Config, log *logrus.Logger) (*onnxModel, []string, error) {
	if err := initEnvironment(cfg.SharedLibPath); err != nil {
		return nil, nil, errors.Wrap(err, "initialize onnxruntime environment")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read model io info from %s", path)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, nil, errors.Errorf("unexpected model io: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	size := cfg.InputSize
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 {
		size = int(dims[2])
	}
	if size <= 0 {
		return nil, nil, errors.New("model input size is not set")
	}

	outputShape := outputs[0].Dimensions
	if len(outputShape) != 3 {
		return nil, nil, errors.Errorf("unsupported output shape %v", outputShape)
	}
	for i, d := range outputShape {
		if d <= 0 {
			if i == 0 {
				outputShape[i] = 1
				continue
			}
			return nil, nil, errors.Errorf("dynamic output dimension %d is not supported", i)
		}
	}

	names := readClassNames(path, log)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, nil, errors.Wrap(err, "create input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, nil, errors.Wrap(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to set graph optimization level")
	}

	session, err := ort.NewAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, nil, errors.Wrapf(err, "create onnx session for %s", path)
	}

	log.WithFields(logrus.Fields{
		"model_path":   path,
		"input_size":   size,
		"output_shape": outputShape.String(),
	}).Info("ONNX session created")

	return &onnxModel{
		session:        session,
		input:          input,
		output:         output,
		outputShape:    outputShape,
		inputSize:      size,
		scoreThreshold: cfg.ScoreThreshold,
		iouThreshold:   cfg.IoUThreshold,
		log:            log,
	}, names, nil
}

// readClassNames reads the "names" entry Ultralytics writes into exported
// model metadata. A missing entry is not an error.
func readClassNames(path string, log *logrus.Logger) []string {
	metadata, err := ort.GetModelMetadata(path)
	if err != nil {
		log.WithField("error", err.Error()).Debug("Model metadata unavailable")
		return nil
	}
	defer metadata.Destroy()

	raw, ok, err := metadata.LookupCustomMetadataMap("names")
	if err != nil || !ok {
		return nil
	}

	return parseNames(raw)
}

func (m *onnxModel) Detect(ctx context.Context, img image.Image) ([]entity.RawDetection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lb := letterboxInput(img, m.inputSize, m.input.GetData())

	if err := m.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run onnx session")
	}

	data := m.output.GetData()
	d1, d2 := int(m.outputShape[1]), int(m.outputShape[2])

	var candidates []entity.RawDetection
	if d1 > d2 {
		candidates = decodeYOLOv5(data, d1, d2, m.scoreThreshold, lb)
	} else {
		candidates = decodeYOLOv8(data, d1, d2, m.scoreThreshold, lb)
	}

	return nonMaxSuppression(candidates, float64(m.iouThreshold), maxDetections), nil
}

func (m *onnxModel) Render(img image.Image, detections []entity.RawDetection, labels []string) (image.Image, error) {
	if m.renderer == nil {
		return nil, errors.New("renderer not configured")
	}
	return m.renderer.Draw(img, detections, labels)
}

func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return errors.Wrap(err, "destroy onnx session")
		}
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
		m.input = nil
	}
	if m.output != nil {
		m.output.Destroy()
		m.output = nil
	}
	return nil
}
