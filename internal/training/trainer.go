package training

import (
	"context"
	"fmt"
	"github.com/sirupsen/logrus"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type TrainRequest struct {
	Data      string
	Model     string
	Epochs    int
	ImageSize int
	Batch     int
	Name      string
	Project   string
}

type ExportRequest struct {
	Weights   string
	ImageSize int
}

// Trainer runs the external training toolkit.
type Trainer interface {
	Train(ctx context.Context, req TrainRequest) error
	// Export converts weights to ONNX with NMS included and returns the
	// exported file.
	Export(ctx context.Context, req ExportRequest) (string, error)
}

type cliTrainer struct {
	log    *logrus.Logger
	bin    string
	stdout io.Writer
	stderr io.Writer
}

// NewCLITrainer drives the toolkit through its command line binary.
func NewCLITrainer(log *logrus.Logger, bin string) Trainer {
	if bin == "" {
		bin = "yolo"
	}
	return &cliTrainer{log: log, bin: bin, stdout: os.Stdout, stderr: os.Stderr}
}

func (t *cliTrainer) Train(ctx context.Context, req TrainRequest) error {
	return t.run(ctx, trainArgs(req))
}

func (t *cliTrainer) Export(ctx context.Context, req ExportRequest) (string, error) {
	if err := t.run(ctx, exportArgs(req)); err != nil {
		return "", err
	}
	return exportedPath(req.Weights), nil
}

func (t *cliTrainer) run(ctx context.Context, args []string) error {
	t.log.Infof("Running %s %s", t.bin, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, t.bin, args...)
	cmd.Stdout = t.stdout
	cmd.Stderr = t.stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", t.bin, args[0], err)
	}
	return nil
}

func trainArgs(req TrainRequest) []string {
	return []string{
		"train",
		"data=" + req.Data,
		"model=" + req.Model,
		"epochs=" + strconv.Itoa(req.Epochs),
		"imgsz=" + strconv.Itoa(req.ImageSize),
		"batch=" + strconv.Itoa(req.Batch),
		"name=" + req.Name,
		"project=" + req.Project,
		"exist_ok=True",
	}
}

func exportArgs(req ExportRequest) []string {
	return []string{
		"export",
		"model=" + req.Weights,
		"format=onnx",
		"nms=True",
		"imgsz=" + strconv.Itoa(req.ImageSize),
	}
}

// exportedPath is where the toolkit writes the ONNX file: next to the weights.
func exportedPath(weights string) string {
	return strings.TrimSuffix(weights, ".pt") + ".onnx"
}
