package config

import (
	"HouseDetection/database/postgres"
	detectionHandler "HouseDetection/internal/api/detection/handler"
	detectionRepository "HouseDetection/internal/api/detection/repository"
	detectionService "HouseDetection/internal/api/detection/service"
	"HouseDetection/internal/middleware"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/redis"
	"HouseDetection/pkg/utils"
	"context"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"time"
)

type ServerOption func(*Server) error

type Server struct {
	engine     *fiber.App
	cfg        *AppConfig
	log        *logrus.Logger
	middleware middleware.Middleware
	validator  *validator.Validate
	utils      utils.IUtils
	handlers   []handler
	detector   *detector.Handle
	cache      redis.IRedis
	db         *sqlx.DB
	repository detectionRepository.Repository
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if server.detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New(int64(server.cfg.MaxUploadBytes()))
	}
	if server.middleware == nil {
		server.middleware = newMiddleware(server.log, server.cfg)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		s.cfg = cfg
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDetector injects the loaded model. Loading happens before the server
// is built so a missing model stops startup.
func WithDetector(handle *detector.Handle) ServerOption {
	return func(s *Server) error {
		if handle == nil {
			return errors.New("detector handle is nil")
		}
		s.detector = handle
		return nil
	}
}

// WithRedisCache enables the result cache when an address is configured.
func WithRedisCache() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil {
			return fmt.Errorf("config must be set before the cache")
		}
		if s.cfg.RedisAddress == "" {
			return nil
		}
		s.cache = redis.New(s.cfg.RedisAddress, s.cfg.RedisPassword, s.cfg.RedisDB)
		return nil
	}
}

func WithCache(cache redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.cache = cache
		return nil
	}
}

// WithDatabase enables prediction history when a DSN is configured.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil || s.log == nil {
			return fmt.Errorf("config and logger must be set before the database")
		}
		if s.cfg.DatabaseURL == "" {
			return nil
		}

		db, err := postgres.New(s.cfg.DatabaseURL)
		if err != nil {
			s.log.Errorf("Failed to connect to database: %v", err)
			return fmt.Errorf("failed to create database connection: %w", err)
		}

		repo := detectionRepository.New(db, s.log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to prepare predictions table: %w", err)
		}

		s.db = db
		s.repository = repo
		return nil
	}
}

func WithRepository(repo detectionRepository.Repository) ServerOption {
	return func(s *Server) error {
		s.repository = repo
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.cfg == nil {
			return fmt.Errorf("config must be set before middleware")
		}
		s.middleware = newMiddleware(s.log, s.cfg)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		if s.cfg == nil {
			return fmt.Errorf("config must be set before utils")
		}
		s.utils = utils.New(int64(s.cfg.MaxUploadBytes()))
		return nil
	}
}

func newMiddleware(log *logrus.Logger, cfg *AppConfig) middleware.Middleware {
	return middleware.New(log, middleware.Options{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
		AuthEnabled:       cfg.AuthEnabled,
		JWTSecret:         cfg.JWTSecret,
	})
}

func (s *Server) RegisterHandler() {
	// Detection
	detectionServices := detectionService.NewDetectionService(s.log, s.detector, s.cache, s.repository, detectionService.Options{
		StagingDir: s.cfg.StagingDir,
		CacheTTL:   s.cfg.CacheTTL,
	})
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils, s.cfg.PredictTimeout, int64(s.cfg.MaxUploadBytes()))

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.handlers = append(s.handlers, detectionHandlers)
	for _, h := range s.handlers {
		h.Start(s.engine)
	}
}

// App exposes the fiber app, mainly for in-process tests.
func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Listen(fmt.Sprintf(":%s", s.cfg.Port))
}

// Shutdown stops accepting requests and releases everything the server holds.
func (s *Server) Shutdown(timeout time.Duration) error {
	var errs []error
	if err := s.engine.ShutdownWithTimeout(timeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := s.detector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close detector: %w", err))
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
