package detector

import (
	"HouseDetection/internal/entity"
	"HouseDetection/pkg/log"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Infer runs the handle's engine on one image and normalizes the boxes.
// An engine result without boxes is a valid empty result, not an error.
func Infer(ctx context.Context, h *Handle, imagePath string) ([]entity.Detection, error) {
	engine, release, err := h.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := os.Stat(imagePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: image %s", ErrNotFound, imagePath)
		}
		return nil, fmt.Errorf("stat image %s: %w", imagePath, err)
	}

	entry := log.WithRequestID(ctx).WithField("image", imagePath)
	entry.Debug("Running detection")

	raw, err := engine.Predict(ctx, imagePath)
	if err != nil {
		return nil, fmt.Errorf("%s engine predict: %w", h.engineName, err)
	}

	if raw == nil {
		entry.Warn("Engine returned no result")
		return []entity.Detection{}, nil
	}
	if len(raw.Boxes) == 0 {
		entry.Warn("No objects detected in image")
		return []entity.Detection{}, nil
	}

	detections := make([]entity.Detection, 0, len(raw.Boxes))
	for _, box := range raw.Boxes {
		detections = append(detections, entity.Detection{
			Class: h.Label(box.ClassID),
			Score: round(box.Score, 4),
			BBox: [4]float64{
				round(box.XYXY[0], 2),
				round(box.XYXY[1], 2),
				round(box.XYXY[2], 2),
				round(box.XYXY[3], 2),
			},
		})
	}

	entry.WithField("detections", len(detections)).Debug("Detection finished")
	return detections, nil
}

// round formats v at the given precision, which rounds the exact binary value
// and sends ties to even.
func round(v float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}
