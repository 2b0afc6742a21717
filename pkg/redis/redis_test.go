package redis

import (
	"github.com/stretchr/testify/assert"
	"regexp"
	"testing"
)

func TestDetectionKey(t *testing.T) {
	key := DetectionKey("/models/best.onnx", []byte("image"))

	assert.Regexp(t, regexp.MustCompile(`^detect:[0-9a-f]{12}:[0-9a-f]{64}$`), key)
	assert.Equal(t, key, DetectionKey("/models/best.onnx", []byte("image")))
	assert.NotEqual(t, key, DetectionKey("/models/other.onnx", []byte("image")))
	assert.NotEqual(t, key, DetectionKey("/models/best.onnx", []byte("other image")))
}
