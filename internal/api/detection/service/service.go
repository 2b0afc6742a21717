package detectionService

import (
	"HouseDetection/internal/api/detection"
	detectionRepository "HouseDetection/internal/api/detection/repository"
	"HouseDetection/internal/entity"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/redis"
	"HouseDetection/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"os"
	"time"
)

type IDetectionService interface {
	Predict(ctx context.Context, upload detection.Upload) ([]entity.Detection, error)
	History(ctx context.Context, query detection.HistoryQuery) (detection.HistoryResponse, error)
	Health() detection.HealthResponse
}

type Options struct {
	StagingDir string
	CacheTTL   time.Duration
}

type detectionService struct {
	log        *logrus.Logger
	handle     *detector.Handle
	cache      redis.IRedis
	repo       detectionRepository.Repository
	utils      utils.IUtils
	stagingDir string
	cacheTTL   time.Duration
}

// NewDetectionService wires the loaded handle into the request path. cache and
// repo may be nil, which disables result caching and prediction history.
func NewDetectionService(
	log *logrus.Logger,
	handle *detector.Handle,
	cache redis.IRedis,
	repo detectionRepository.Repository,
	opts Options,
) IDetectionService {
	stagingDir := opts.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}

	return &detectionService{
		log:        log,
		handle:     handle,
		cache:      cache,
		repo:       repo,
		utils:      utils.New(0),
		stagingDir: stagingDir,
		cacheTTL:   opts.CacheTTL,
	}
}
