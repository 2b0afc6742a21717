package detector

import (
	"HouseDetection/internal/entity"
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"os"
	"strconv"
	"sync"
)

var (
	ErrNotFound  = errors.New("file not found")
	ErrNotLoaded = errors.New("detector is not loaded")
)

// Engine is the detection backend. Predict runs the model on the image stored
// at imagePath and returns boxes in source image pixel coordinates.
type Engine interface {
	Predict(ctx context.Context, imagePath string) (*entity.RawResult, error)
	Close() error
}

// Opener builds an engine for a weights file and reports its class names.
type Opener func(weightsPath string) (Engine, map[int]string, error)

// Handle is a loaded detector. It is immutable after Load and may be shared
// between goroutines.
type Handle struct {
	weightsPath string
	engineName  string
	engine      Engine
	names       map[int]string

	mu     sync.RWMutex
	closed bool
}

type LoadOption func(*Handle)

// WithEngineName labels the handle for health output and logs.
func WithEngineName(name string) LoadOption {
	return func(h *Handle) {
		h.engineName = name
	}
}

func Load(log *logrus.Logger, weightsPath string, open Opener, opts ...LoadOption) (*Handle, error) {
	info, err := os.Stat(weightsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: weights file %s", ErrNotFound, weightsPath)
		}
		return nil, fmt.Errorf("stat weights file %s: %w", weightsPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: weights path %s is a directory", ErrNotFound, weightsPath)
	}
	if open == nil {
		return nil, errors.New("detector opener is required")
	}

	h := &Handle{weightsPath: weightsPath}
	for _, opt := range opts {
		opt(h)
	}

	log.WithFields(logrus.Fields{
		"weights": weightsPath,
		"engine":  h.engineName,
	}).Info("Loading detection model")

	engine, names, err := open(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s engine: %w", h.engineName, err)
	}

	h.engine = engine
	h.names = make(map[int]string, len(names))
	for id, name := range names {
		h.names[id] = name
	}

	log.WithFields(logrus.Fields{
		"weights": weightsPath,
		"classes": len(h.names),
	}).Debug("Detection model loaded")

	return h, nil
}

func (h *Handle) WeightsPath() string {
	return h.weightsPath
}

func (h *Handle) EngineName() string {
	return h.engineName
}

// Label resolves a class id, falling back to the decimal id.
func (h *Handle) Label(id int) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// Classes returns a copy of the class map.
func (h *Handle) Classes() map[int]string {
	out := make(map[int]string, len(h.names))
	for id, name := range h.names {
		out[id] = name
	}
	return out
}

func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.engine.Close()
}

// acquire keeps Close from racing an in-flight Predict.
func (h *Handle) acquire() (Engine, func(), error) {
	if h == nil {
		return nil, nil, ErrNotLoaded
	}
	h.mu.RLock()
	if h.closed || h.engine == nil {
		h.mu.RUnlock()
		return nil, nil, ErrNotLoaded
	}
	return h.engine, h.mu.RUnlock, nil
}
