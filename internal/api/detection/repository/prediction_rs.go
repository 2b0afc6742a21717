package detectionRepository

import (
	"HouseDetection/internal/entity"
	contextPkg "HouseDetection/pkg/context"
	"database/sql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"time"
)

type PredictionDB struct {
	ID         string         `db:"id"`
	RequestID  string         `db:"request_id"`
	Subject    sql.NullString `db:"subject"`
	Filename   sql.NullString `db:"filename"`
	Weights    string         `db:"weights"`
	Engine     string         `db:"engine"`
	Detections int            `db:"detections"`
	Cached     bool           `db:"cached"`
	LatencyMS  int64          `db:"latency_ms"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r *predictionsRepository) CreatePrediction(ctx context.Context, prediction entity.Prediction) error {
	requestID := contextPkg.GetRequestID(ctx)
	argsKV := map[string]interface{}{
		"id":         prediction.ID,
		"request_id": prediction.RequestID,
		"subject":    nullString(prediction.Subject),
		"filename":   nullString(prediction.Filename),
		"weights":    prediction.Weights,
		"engine":     prediction.Engine,
		"detections": prediction.Detections,
		"cached":     prediction.Cached,
		"latency_ms": prediction.LatencyMS,
		"created_at": prediction.CreatedAt,
	}

	query, args, err := sqlx.Named(queryCreatePrediction, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreatePrediction")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating prediction")
		return err
	}

	return nil
}

func (r *predictionsRepository) GetRecentPredictions(ctx context.Context, limit, offset int) ([]entity.Prediction, int, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var rows []PredictionDB
	var total int

	if err := r.q.QueryRowxContext(ctx, r.q.Rebind(queryCountPredictions)).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountPredictions execution err")
		return nil, 0, err
	}

	query, args, err := sqlx.Named(queryGetRecentPredictions, map[string]interface{}{
		"limit":  limit,
		"offset": offset,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentPredictions named query preparation err")
		return nil, 0, err
	}

	query = r.q.Rebind(query)

	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetRecentPredictions execution err")
		return nil, 0, err
	}

	predictions := make([]entity.Prediction, 0, len(rows))
	for _, row := range rows {
		predictions = append(predictions, makePrediction(row))
	}

	return predictions, total, nil
}

func makePrediction(row PredictionDB) entity.Prediction {
	return entity.Prediction{
		ID:         row.ID,
		RequestID:  row.RequestID,
		Subject:    row.Subject.String,
		Filename:   row.Filename.String,
		Weights:    row.Weights,
		Engine:     row.Engine,
		Detections: row.Detections,
		Cached:     row.Cached,
		LatencyMS:  row.LatencyMS,
		CreatedAt:  row.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
