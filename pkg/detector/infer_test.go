package detector

import (
	"HouseDetection/internal/entity"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

func loadFake(t *testing.T, engine *fakeEngine, names map[int]string) *Handle {
	t.Helper()
	h, err := Load(newLogger(), writeFile(t, "best.pt"), opener(engine, names), WithEngineName("fake"))
	require.NoError(t, err)
	return h
}

func TestInferNormalizesBoxes(t *testing.T) {
	engine := &fakeEngine{result: &entity.RawResult{Boxes: []entity.RawBox{
		{XYXY: [4]float64{10.123, 20.456, 110.999, 220.001}, Score: 0.91666, ClassID: 0},
		{XYXY: [4]float64{1, 2, 3, 4}, Score: 0.5, ClassID: 3},
	}}}
	h := loadFake(t, engine, map[int]string{0: "house"})
	image := writeFile(t, "img.jpg")

	got, err := Infer(context.Background(), h, image)
	require.NoError(t, err)

	assert.Equal(t, []entity.Detection{
		{Class: "house", Score: 0.9167, BBox: [4]float64{10.12, 20.46, 111, 220}},
		{Class: "3", Score: 0.5, BBox: [4]float64{1, 2, 3, 4}},
	}, got)
	assert.Equal(t, []string{image}, engine.calls)
}

func TestInferEmptyResults(t *testing.T) {
	tests := []struct {
		name   string
		result *entity.RawResult
	}{
		{name: "no result container", result: nil},
		{name: "zero boxes", result: &entity.RawResult{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := loadFake(t, &fakeEngine{result: tt.result}, nil)

			got, err := Infer(context.Background(), h, writeFile(t, "img.png"))
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestInferMissingImage(t *testing.T) {
	engine := &fakeEngine{}
	h := loadFake(t, engine, nil)

	_, err := Infer(context.Background(), h, filepath.Join(t.TempDir(), "nope.jpg"))
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, engine.calls)
}

func TestInferEngineError(t *testing.T) {
	boom := errors.New("out of memory")
	h := loadFake(t, &fakeEngine{err: boom}, nil)

	_, err := Infer(context.Background(), h, writeFile(t, "img.jpg"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fake engine predict")
}

func TestInferAfterClose(t *testing.T) {
	h := loadFake(t, &fakeEngine{}, nil)
	require.NoError(t, h.Close())

	_, err := Infer(context.Background(), h, writeFile(t, "img.jpg"))
	require.ErrorIs(t, err, ErrNotLoaded)

	_, err = Infer(context.Background(), nil, writeFile(t, "img.jpg"))
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.9167, round(0.91666, 4))
	assert.Equal(t, 12.35, round(12.345678, 2))
	assert.Equal(t, -1.5, round(-1.499, 2))

	// exact binary ties go to the even digit
	assert.Equal(t, 10.12, round(10.125, 2))
	assert.Equal(t, 0.12, round(0.125, 2))
	assert.Equal(t, 100.38, round(100.375, 2))
	assert.Equal(t, 2.62, round(2.625, 2))
	assert.Equal(t, 2.5, round(2.5, 2))
	assert.Equal(t, 0.5, round(0.5, 4))
}

func TestInferRoundsTiesToEven(t *testing.T) {
	engine := &fakeEngine{result: &entity.RawResult{Boxes: []entity.RawBox{
		{XYXY: [4]float64{10.125, 0.125, 2.5, 100.375}, Score: 0.50005, ClassID: 0},
	}}}
	h := loadFake(t, engine, map[int]string{0: "house"})

	got, err := Infer(context.Background(), h, writeFile(t, "img.jpg"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [4]float64{10.12, 0.12, 2.5, 100.38}, got[0].BBox)
}
