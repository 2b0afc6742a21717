package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrNoResults = errors.New("results file has no epochs")

// Summary is printed when a training run completes.
type Summary struct {
	RunDir      string             `json:"run_dir"`
	BestWeights string             `json:"best_weights"`
	LastWeights string             `json:"last_weights"`
	Epochs      int                `json:"epochs"`
	Classes     []string           `json:"classes"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	ONNXWeights string             `json:"onnx_weights,omitempty"`
	Uploaded    []string           `json:"uploaded,omitempty"`
}

// ReadResults returns the last row of the per-epoch results table keyed by
// column name. Non-numeric cells are skipped.
func ReadResults(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrNoResults, path)
	}

	header, last := rows[0], rows[len(rows)-1]
	metrics := make(map[string]float64, len(header))
	for i, col := range header {
		if i >= len(last) {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(last[i]), 64)
		if err != nil {
			continue
		}
		metrics[strings.TrimSpace(col)] = v
	}
	return metrics, nil
}
