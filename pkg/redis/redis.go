package redis

import (
	"HouseDetection/internal/entity"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"time"
)

// IRedis caches detection results keyed by model and image content.
type IRedis interface {
	GetDetections(ctx context.Context, key string) ([]entity.Detection, bool, error)
	SetDetections(ctx context.Context, key string, detections []entity.Detection, expiration time.Duration) error
	Close() error
}

type redisClient struct {
	client *redis.Client
}

func New(addr, password string, db int) IRedis {
	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", addr))

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

// DetectionKey names the cache entry of one image under one weights file.
func DetectionKey(weightsPath string, image []byte) string {
	model := sha256.Sum256([]byte(weightsPath))
	content := sha256.Sum256(image)
	return fmt.Sprintf("detect:%s:%s", hex.EncodeToString(model[:6]), hex.EncodeToString(content[:]))
}

func (r *redisClient) GetDetections(ctx context.Context, key string) ([]entity.Detection, bool, error) {
	logrus.Debug(fmt.Sprintf("Getting detections for key %s", key))
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting detections for key %s: %v", key, err))
		return nil, false, err
	}

	detections := []entity.Detection{}
	if err := jsoniter.Unmarshal(val, &detections); err != nil {
		return nil, false, fmt.Errorf("decode cached detections: %w", err)
	}
	return detections, true, nil
}

func (r *redisClient) SetDetections(ctx context.Context, key string, detections []entity.Detection, expiration time.Duration) error {
	val, err := jsoniter.Marshal(detections)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, key, val, expiration).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error setting detections for key %s: %v", key, err))
		return err
	}
	logrus.Debug(fmt.Sprintf("Cached %d detections for key %s", len(detections), key))
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
