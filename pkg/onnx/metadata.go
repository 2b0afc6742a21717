package onnx

import (
	"errors"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"os"
	"path/filepath"
	"strings"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultInputName      = "images"
	defaultOutputName     = "output0"
	defaultImageSize      = 640
	defaultMaxDetections  = 300
	defaultScoreThreshold = 0.25
)

// Metadata describes an end-to-end exported detector: one float32 NCHW image
// input and one [1, MaxDetections, 6] output of x1,y1,x2,y2,score,class rows.
type Metadata struct {
	InputName      string   `json:"input_name"`
	OutputName     string   `json:"output_name"`
	ImageSize      int      `json:"image_size"`
	MaxDetections  int      `json:"max_detections"`
	ScoreThreshold float64  `json:"score_threshold"`
	Classes        []string `json:"classes"`
}

// MetadataPath is the sidecar location for a weights file: model.onnx -> model.json.
func MetadataPath(weightsPath string) string {
	return strings.TrimSuffix(weightsPath, filepath.Ext(weightsPath)) + ".json"
}

// LoadMetadata reads the sidecar next to weightsPath. A missing sidecar yields
// the export defaults with no class names.
func LoadMetadata(weightsPath string) (Metadata, error) {
	md := Metadata{}

	raw, err := os.ReadFile(MetadataPath(weightsPath))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	default:
		if err := json.Unmarshal(raw, &md); err != nil {
			return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
		}
	}

	md.applyDefaults()
	return md, nil
}

// WriteMetadata stores md as the sidecar of weightsPath.
func WriteMetadata(weightsPath string, md Metadata) error {
	md.applyDefaults()
	raw, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(MetadataPath(weightsPath), raw, 0o644)
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = defaultInputName
	}
	if m.OutputName == "" {
		m.OutputName = defaultOutputName
	}
	if m.ImageSize <= 0 {
		m.ImageSize = defaultImageSize
	}
	if m.MaxDetections <= 0 {
		m.MaxDetections = defaultMaxDetections
	}
	if m.ScoreThreshold <= 0 {
		m.ScoreThreshold = defaultScoreThreshold
	}
}

func (m Metadata) names() map[int]string {
	names := make(map[int]string, len(m.Classes))
	for i, name := range m.Classes {
		names[i] = name
	}
	return names
}
