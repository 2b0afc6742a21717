package training

import (
	"HouseDetection/pkg/onnx"
	s3Pkg "HouseDetection/pkg/s3"
	"context"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"os"
	"path"
	"path/filepath"
)

var ErrStorageRequired = errors.New("s3 storage is required for s3:// archives and uploads")

type Options struct {
	ZipPath      string `validate:"required"`
	ExtractDir   string
	Model        string `validate:"required"`
	Epochs       int    `validate:"gt=0"`
	ImageSize    int    `validate:"gt=0"`
	Batch        int    `validate:"gt=0"`
	Name         string `validate:"required"`
	Project      string `validate:"required"`
	ExportONNX   bool
	UploadBucket string
}

type Runner struct {
	log       *logrus.Logger
	validator *validator.Validate
	trainer   Trainer
	storage   s3Pkg.ItfS3
}

// NewRunner wires a training run. storage may be nil when neither the archive
// nor the upload target lives on S3.
func NewRunner(log *logrus.Logger, validate *validator.Validate, trainer Trainer, storage s3Pkg.ItfS3) *Runner {
	return &Runner{log: log, validator: validate, trainer: trainer, storage: storage}
}

func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := r.validator.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid training options: %w", err)
	}

	extractDir := opts.ExtractDir
	if extractDir == "" {
		extractDir = ScratchDir(opts.ZipPath)
	}

	zipPath, err := r.fetchArchive(ctx, opts.ZipPath, extractDir)
	if err != nil {
		return nil, err
	}

	manifestPath, err := Unzip(r.log, zipPath, extractDir)
	if err != nil {
		return nil, err
	}

	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	classes := manifest.Names.Ordered()
	r.log.WithField("classes", classes).Info("Dataset manifest loaded")

	err = r.trainer.Train(ctx, TrainRequest{
		Data:      manifestPath,
		Model:     opts.Model,
		Epochs:    opts.Epochs,
		ImageSize: opts.ImageSize,
		Batch:     opts.Batch,
		Name:      opts.Name,
		Project:   opts.Project,
	})
	if err != nil {
		return nil, err
	}

	runDir := filepath.Join(opts.Project, opts.Name)
	summary := &Summary{
		RunDir:      runDir,
		BestWeights: filepath.Join(runDir, "weights", "best.pt"),
		LastWeights: filepath.Join(runDir, "weights", "last.pt"),
		Epochs:      opts.Epochs,
		Classes:     classes,
	}

	metrics, err := ReadResults(filepath.Join(runDir, "results.csv"))
	if err != nil {
		r.log.Warnf("No training metrics: %v", err)
	} else {
		summary.Metrics = metrics
	}

	artifacts := []string{summary.BestWeights}
	if opts.ExportONNX {
		onnxPath, err := r.trainer.Export(ctx, ExportRequest{Weights: summary.BestWeights, ImageSize: opts.ImageSize})
		if err != nil {
			return nil, err
		}
		if err := onnx.WriteMetadata(onnxPath, onnx.Metadata{ImageSize: opts.ImageSize, Classes: classes}); err != nil {
			return nil, fmt.Errorf("write onnx metadata: %w", err)
		}
		summary.ONNXWeights = onnxPath
		artifacts = append(artifacts, onnxPath, onnx.MetadataPath(onnxPath))
	}

	if opts.UploadBucket != "" {
		uploaded, err := r.upload(ctx, opts.UploadBucket, opts.Name, artifacts)
		if err != nil {
			return nil, err
		}
		summary.Uploaded = uploaded
	}

	r.log.Infof("Training finished, best weights at %s", summary.BestWeights)
	return summary, nil
}

// fetchArchive downloads s3:// archives next to the extract directory and
// returns the local path. Local paths are returned unchanged.
func (r *Runner) fetchArchive(ctx context.Context, zipPath, extractDir string) (string, error) {
	bucket, key, ok := s3Pkg.ParseURI(zipPath)
	if !ok {
		return zipPath, nil
	}
	if r.storage == nil {
		return "", ErrStorageRequired
	}

	dst := filepath.Join(filepath.Dir(filepath.Clean(extractDir)), path.Base(key))
	r.log.Infof("Downloading %s to %s", zipPath, dst)
	if err := r.storage.Download(ctx, bucket, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func (r *Runner) upload(ctx context.Context, bucket, prefix string, files []string) ([]string, error) {
	if r.storage == nil {
		return nil, ErrStorageRequired
	}

	locations := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, fmt.Errorf("artifact %s: %w", f, err)
		}
		key := path.Join(prefix, filepath.Base(f))
		location, err := r.storage.UploadFile(ctx, bucket, key, f)
		if err != nil {
			return nil, err
		}
		r.log.Infof("Uploaded %s to %s", f, location)
		locations = append(locations, location)
	}
	return locations, nil
}
