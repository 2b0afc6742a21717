package config

import (
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"os"
	"strconv"
	"time"
)

const (
	EngineONNX      = "onnx"
	EngineWebSocket = "websocket"
)

// AppConfig is the serving process configuration, read from the environment.
type AppConfig struct {
	Env            string
	Port           string `validate:"required,numeric"`
	WeightsPath    string `validate:"required"`
	Engine         string `validate:"oneof=onnx websocket"`
	OnnxLibPath    string
	DetectorWSURL  string `validate:"required_if=Engine websocket"`
	StagingDir     string
	MaxUploadMB    int           `validate:"min=1"`
	PredictTimeout time.Duration `validate:"gte=0"`
	RateLimitRPS   float64       `validate:"gte=0"`
	RateLimitBurst int           `validate:"gte=0"`
	AuthEnabled    bool
	JWTSecret      string `validate:"required_if=AuthEnabled true"`
	RedisAddress   string
	RedisPassword  string
	RedisDB        int           `validate:"gte=0"`
	CacheTTL       time.Duration `validate:"gte=0"`
	DatabaseURL    string
}

// MaxUploadBytes is the body limit derived from MaxUploadMB.
func (c *AppConfig) MaxUploadBytes() int {
	return c.MaxUploadMB * 1024 * 1024
}

// LoadAppConfig reads the environment. The weights path has no default and
// must always be supplied.
func LoadAppConfig(v *validator.Validate) (*AppConfig, error) {
	var errs []error

	cfg := &AppConfig{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("APP_PORT", "3000"),
		WeightsPath:    os.Getenv("YOLO_WEIGHTS"),
		Engine:         getEnv("DETECTOR_ENGINE", EngineONNX),
		OnnxLibPath:    os.Getenv("ONNXRUNTIME_LIB"),
		DetectorWSURL:  getEnv("DETECTOR_WS_URL", "ws://localhost:8000/api/v1/detect/ws"),
		StagingDir:     getEnv("STAGING_DIR", os.TempDir()),
		MaxUploadMB:    getEnvInt("MAX_UPLOAD_MB", 50, &errs),
		PredictTimeout: getEnvDuration("PREDICT_TIMEOUT", 60*time.Second, &errs),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10, &errs),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20, &errs),
		AuthEnabled:    getEnvBool("AUTH_ENABLED", false, &errs),
		JWTSecret:      os.Getenv("JWT_ACCESS_TOKEN_SECRET"),
		RedisAddress:   os.Getenv("REDIS_ADDRESS"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0, &errs),
		CacheTTL:       getEnvDuration("CACHE_TTL", 10*time.Minute, &errs),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int, errs *[]error) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64, errs *[]error) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool, errs *[]error) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration, errs *[]error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return d
}
