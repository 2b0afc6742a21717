package main

import (
	"HouseDetection/internal/config"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/log"
	"HouseDetection/pkg/onnx"
	websocketPkg "HouseDetection/pkg/websocket"
	"errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Fatalf("Error loading .env file: %v", err)
	}
	logger := log.NewLogger()

	validator := config.NewValidator()
	cfg, err := config.LoadAppConfig(validator)
	if err != nil {
		logger.Fatalf("Error loading configuration: %v", err)
	}

	handle, err := detector.Load(logger, cfg.WeightsPath, opener(logger, cfg), detector.WithEngineName(cfg.Engine))
	if err != nil {
		logger.Fatalf("Model not found or failed to load from %s: %v", cfg.WeightsPath, err)
	}

	fiberApp := config.NewFiber(logger, cfg.MaxUploadBytes())

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithConfig(cfg),
		config.WithValidator(validator),
		config.WithDetector(handle),
		config.WithRedisCache(),
		config.WithDatabase(),
		config.WithMiddleware(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"engine":  cfg.Engine,
		"weights": cfg.WeightsPath,
	}).Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}

func opener(logger *logrus.Logger, cfg *config.AppConfig) detector.Opener {
	switch cfg.Engine {
	case config.EngineWebSocket:
		return websocketPkg.Open(logger, cfg.DetectorWSURL)
	default:
		return onnx.Open(cfg.OnnxLibPath)
	}
}
