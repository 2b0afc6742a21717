package detectionService

import (
	"HouseDetection/internal/api/detection"
	"HouseDetection/internal/entity"
	contextPkg "HouseDetection/pkg/context"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/log"
	"HouseDetection/pkg/redis"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"golang.org/x/net/context"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const defaultStagedExt = ".img"

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,5}$`)

func (s *detectionService) Predict(ctx context.Context, upload detection.Upload) ([]entity.Detection, error) {
	entry := log.WithRequestID(ctx)
	start := time.Now()

	cacheKey := ""
	if s.cache != nil {
		cacheKey = redis.DetectionKey(s.handle.WeightsPath(), upload.Data)
		cached, ok, err := s.cache.GetDetections(ctx, cacheKey)
		if err != nil {
			entry.WithError(err).Warn("Detection cache lookup failed")
		} else if ok {
			entry.WithField("detections", len(cached)).Debug("Serving detections from cache")
			s.record(ctx, upload, len(cached), true, start)
			return cached, nil
		}
	}

	path, cleanup, err := s.stage(upload)
	if err != nil {
		return nil, detection.NewInferenceError(err)
	}
	defer cleanup()

	detections, err := detector.Infer(ctx, s.handle, path)
	if err != nil {
		return nil, detection.NewInferenceError(err)
	}

	if s.cache != nil {
		if err := s.cache.SetDetections(ctx, cacheKey, detections, s.cacheTTL); err != nil {
			entry.WithError(err).Warn("Detection cache store failed")
		}
	}

	s.record(ctx, upload, len(detections), false, start)
	return detections, nil
}

func (s *detectionService) History(ctx context.Context, query detection.HistoryQuery) (detection.HistoryResponse, error) {
	if s.repo == nil {
		return detection.HistoryResponse{}, detection.ErrHistoryDisabled
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return detection.HistoryResponse{}, detection.ErrInternalServerError
	}

	items, total, err := client.Predictions.GetRecentPredictions(ctx, query.Limit, query.Offset)
	if err != nil {
		return detection.HistoryResponse{}, detection.ErrInternalServerError
	}

	return detection.HistoryResponse{
		Items:  items,
		Total:  total,
		Limit:  query.Limit,
		Offset: query.Offset,
	}, nil
}

// record appends the prediction to the history log. Failures are logged only.
func (s *detectionService) record(ctx context.Context, upload detection.Upload, detections int, cached bool, start time.Time) {
	if s.repo == nil {
		return
	}
	entry := log.WithRequestID(ctx)

	now := time.Now()
	id, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		entry.WithError(err).Warn("Failed to generate prediction id")
		return
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		entry.WithError(err).Warn("Failed to open prediction history")
		return
	}

	err = client.Predictions.CreatePrediction(ctx, entity.Prediction{
		ID:         id,
		RequestID:  contextPkg.GetRequestID(ctx),
		Subject:    upload.Subject,
		Filename:   upload.Filename,
		Weights:    s.handle.WeightsPath(),
		Engine:     s.handle.EngineName(),
		Detections: detections,
		Cached:     cached,
		LatencyMS:  now.Sub(start).Milliseconds(),
		CreatedAt:  now.UTC(),
	})
	if err != nil {
		entry.WithError(err).Warn("Failed to record prediction")
	}
}

func (s *detectionService) Health() detection.HealthResponse {
	return detection.HealthResponse{
		Status:  "ok",
		Engine:  s.handle.EngineName(),
		Weights: s.handle.WeightsPath(),
		Classes: s.handle.Classes(),
	}
}

// stage writes the upload to a file only this request knows about. The
// returned cleanup removes it and is safe to call on every exit path.
func (s *detectionService) stage(upload detection.Upload) (string, func(), error) {
	ext := filepath.Ext(filepath.Base(upload.Filename))
	if !extPattern.MatchString(ext) {
		ext = defaultStagedExt
	}
	path := filepath.Join(s.stagingDir, "upload-"+uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).WithField("path", path).Warn("Failed to remove staged upload")
		}
	}

	if _, err := f.Write(upload.Data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close staging file: %w", err)
	}

	return path, cleanup, nil
}
