package onnx

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func TestMetadataPath(t *testing.T) {
	assert.Equal(t, "runs/exp/weights/best.json", MetadataPath("runs/exp/weights/best.onnx"))
}

func TestLoadMetadataDefaults(t *testing.T) {
	md, err := LoadMetadata(filepath.Join(t.TempDir(), "model.onnx"))
	require.NoError(t, err)

	assert.Equal(t, Metadata{
		InputName:      "images",
		OutputName:     "output0",
		ImageSize:      640,
		MaxDetections:  300,
		ScoreThreshold: 0.25,
	}, md)
	assert.Empty(t, md.names())
}

func TestWriteMetadataFillsDefaults(t *testing.T) {
	weights := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, WriteMetadata(weights, Metadata{ImageSize: 1024, Classes: []string{"house", "shed"}}))

	md, err := LoadMetadata(weights)
	require.NoError(t, err)
	assert.Equal(t, 1024, md.ImageSize)
	assert.Equal(t, "images", md.InputName)
	assert.Equal(t, map[int]string{0: "house", 1: "shed"}, md.names())
}

func TestLoadMetadataInvalid(t *testing.T) {
	weights := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(MetadataPath(weights), []byte("{"), 0o600))

	_, err := LoadMetadata(weights)
	assert.ErrorContains(t, err, "failed to parse metadata")
}
