package onnx

import (
	"HouseDetection/internal/entity"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/log"
	"context"
	"fmt"
	ort "github.com/yalue/onnxruntime_go"
	"sync"
)

var (
	envMu   sync.Mutex
	envRefs int
)

// Engine runs an exported detector in-process. Session tensors are shared,
// so Predict calls are serialized.
type Engine struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	meta    Metadata
}

// Open returns an Opener bound to the ONNX Runtime shared library at libPath.
// An empty libPath keeps the runtime's default lookup.
func Open(libPath string) detector.Opener {
	return func(weightsPath string) (detector.Engine, map[int]string, error) {
		md, err := LoadMetadata(weightsPath)
		if err != nil {
			return nil, nil, err
		}

		engine, err := newEngine(libPath, weightsPath, md)
		if err != nil {
			return nil, nil, err
		}
		return engine, md.names(), nil
	}
}

func newEngine(libPath, weightsPath string, md Metadata) (*Engine, error) {
	if err := acquireEnvironment(libPath); err != nil {
		return nil, err
	}

	size := int64(md.ImageSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(md.MaxDetections), valuesPerRow))
	if err != nil {
		inputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(weightsPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Engine{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		meta:    md,
	}, nil
}

func (e *Engine) Predict(ctx context.Context, imagePath string) (*entity.RawResult, error) {
	img, err := decodeImage(imagePath)
	if err != nil {
		return nil, err
	}
	canvas, lb := fitImage(img, e.meta.ImageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Run cannot be interrupted once started.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fillTensor(canvas, e.input.GetData())
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return &entity.RawResult{
		Boxes: decodeRows(e.output.GetData(), lb, e.meta.ScoreThreshold),
	}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	e.input, e.output, e.session = nil, nil, nil
	return releaseEnvironment()
}

func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		log.Info(log.Fields{"library": libPath}, "ONNX Runtime environment initialized")
	}
	envRefs++
	return nil
}

func releaseEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs > 0 {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		log.Warn(log.Fields{"error": err.Error()}, "Failed to destroy ONNX Runtime environment")
		return err
	}
	log.Debug(nil, "ONNX Runtime environment destroyed")
	return nil
}
