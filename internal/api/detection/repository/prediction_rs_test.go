package detectionRepository

import (
	"HouseDetection/internal/entity"
	"database/sql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
	"strings"
	"testing"
	"time"
)

// recordingExecutor captures statements instead of running them.
type recordingExecutor struct {
	SQLExecutor
	query string
	args  []interface{}
}

func (r *recordingExecutor) Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func (r *recordingExecutor) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	r.query, r.args = query, args
	return nil, nil
}

func TestCreatePrediction(t *testing.T) {
	exec := &recordingExecutor{}
	repo := &predictionsRepository{q: exec, log: logrus.New()}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := repo.CreatePrediction(context.Background(), entity.Prediction{
		ID:         "01J0000000000000000000000",
		RequestID:  "req-1",
		Filename:   "house.jpg",
		Weights:    "/models/best.onnx",
		Engine:     "onnx",
		Detections: 3,
		LatencyMS:  42,
		CreatedAt:  now,
	})
	require.NoError(t, err)

	assert.Contains(t, exec.query, "INSERT INTO predictions")
	assert.Contains(t, exec.query, "$10")
	assert.False(t, strings.Contains(exec.query, ":id"))
	assert.Equal(t, []interface{}{
		"01J0000000000000000000000",
		"req-1",
		sql.NullString{},
		sql.NullString{String: "house.jpg", Valid: true},
		"/models/best.onnx",
		"onnx",
		3,
		false,
		int64(42),
		now,
	}, exec.args)
}

func TestMakePrediction(t *testing.T) {
	now := time.Now()
	got := makePrediction(PredictionDB{
		ID:         "id",
		RequestID:  "req",
		Subject:    sql.NullString{String: "user-1", Valid: true},
		Weights:    "w",
		Engine:     "websocket",
		Detections: 1,
		Cached:     true,
		LatencyMS:  7,
		CreatedAt:  now,
	})

	assert.Equal(t, entity.Prediction{
		ID:         "id",
		RequestID:  "req",
		Subject:    "user-1",
		Weights:    "w",
		Engine:     "websocket",
		Detections: 1,
		Cached:     true,
		LatencyMS:  7,
		CreatedAt:  now,
	}, got)
}
