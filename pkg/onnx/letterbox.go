package onnx

import (
	"HouseDetection/internal/entity"
	"errors"
	"fmt"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
)

const (
	valuesPerRow = 6

	// maxImagePixels bounds the canvas a header may declare before decoding.
	maxImagePixels = 8192 * 8192
)

var ErrImageTooLarge = errors.New("image dimensions exceed limit")

var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox records how a source image was fitted into the square model input.
type letterbox struct {
	scale      float64
	padX, padY float64
	srcW, srcH int
}

func decodeImage(imagePath string) (image.Image, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func fitImage(img image.Image, size int) (*image.RGBA, letterbox) {
	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	scale := math.Min(float64(size)/float64(srcW), float64(size)/float64(srcH))
	newW := int(math.Round(float64(srcW) * scale))
	newH := int(math.Round(float64(srcH) * scale))
	padX := (size - newW) / 2
	padY := (size - newH) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: padColor}, image.Point{}, draw.Src)

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	target := image.Rect(padX, padY, padX+newW, padY+newH)
	draw.Draw(canvas, target, resized, resized.Bounds().Min, draw.Src)

	return canvas, letterbox{
		scale: scale,
		padX:  float64(padX),
		padY:  float64(padY),
		srcW:  srcW,
		srcH:  srcH,
	}
}

// fillTensor writes img as planar RGB scaled to [0,1].
func fillTensor(img *image.RGBA, dst []float32) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(x, y)
			i := y*w + x
			dst[i] = float32(img.Pix[off]) / 255
			dst[plane+i] = float32(img.Pix[off+1]) / 255
			dst[2*plane+i] = float32(img.Pix[off+2]) / 255
		}
	}
}

// decodeRows turns output rows into boxes in source pixel space, keeping
// model order and dropping rows under threshold (zero padding included).
func decodeRows(out []float32, lb letterbox, threshold float64) []entity.RawBox {
	boxes := make([]entity.RawBox, 0)
	for i := 0; i+valuesPerRow <= len(out); i += valuesPerRow {
		score := float64(out[i+4])
		if score < threshold {
			continue
		}
		boxes = append(boxes, entity.RawBox{
			XYXY: [4]float64{
				clamp((float64(out[i])-lb.padX)/lb.scale, float64(lb.srcW)),
				clamp((float64(out[i+1])-lb.padY)/lb.scale, float64(lb.srcH)),
				clamp((float64(out[i+2])-lb.padX)/lb.scale, float64(lb.srcW)),
				clamp((float64(out[i+3])-lb.padY)/lb.scale, float64(lb.srcH)),
			},
			Score:   score,
			ClassID: int(math.Round(float64(out[i+5]))),
		})
	}
	return boxes
}

func clamp(v, upper float64) float64 {
	return math.Max(0, math.Min(v, upper))
}
