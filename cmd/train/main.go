package main

import (
	"HouseDetection/internal/config"
	"HouseDetection/internal/training"
	"HouseDetection/pkg/log"
	s3Pkg "HouseDetection/pkg/s3"
	"context"
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Fatalf("Error loading .env file: %v", err)
	}
	logger := log.NewLogger()

	app := &cli.App{
		Name:  "train",
		Usage: "train a house footprint detector from a zipped dataset",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "zip_path", Usage: "dataset archive, local path or s3://bucket/key", Required: true},
			&cli.IntFlag{Name: "epochs", Value: 50},
			&cli.IntFlag{Name: "imgsz", Value: 640},
			&cli.IntFlag{Name: "batch", Value: 8},
			&cli.StringFlag{Name: "model", Value: "yolov8n-obb.pt", Usage: "base weights"},
			&cli.StringFlag{Name: "name", Value: "casas_colombia_yolo_obb", Usage: "run name"},
			&cli.StringFlag{Name: "project", Value: "runs", Usage: "run output directory"},
			&cli.StringFlag{Name: "extract_dir", Usage: "dataset scratch directory"},
			&cli.StringFlag{Name: "yolo_bin", Value: "yolo", Usage: "training toolkit executable"},
			&cli.BoolFlag{Name: "export_onnx", Usage: "export best weights to ONNX with NMS"},
			&cli.StringFlag{Name: "upload_bucket", Usage: "S3 bucket receiving the trained weights"},
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Errorf("Training failed: %v", err)
		stop()
		os.Exit(1)
	}
}

func run(c *cli.Context, logger *logrus.Logger) error {
	opts := training.Options{
		ZipPath:      c.String("zip_path"),
		ExtractDir:   c.String("extract_dir"),
		Model:        c.String("model"),
		Epochs:       c.Int("epochs"),
		ImageSize:    c.Int("imgsz"),
		Batch:        c.Int("batch"),
		Name:         c.String("name"),
		Project:      c.String("project"),
		ExportONNX:   c.Bool("export_onnx"),
		UploadBucket: c.String("upload_bucket"),
	}

	var storage s3Pkg.ItfS3
	if _, _, ok := s3Pkg.ParseURI(opts.ZipPath); ok || opts.UploadBucket != "" {
		s, err := s3Pkg.New()
		if err != nil {
			return fmt.Errorf("create s3 session: %w", err)
		}
		storage = s
	}

	runner := training.NewRunner(logger, config.NewValidator(), training.NewCLITrainer(logger, c.String("yolo_bin")), storage)
	summary, err := runner.Run(c.Context, opts)
	if err != nil {
		return err
	}

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
