package detectionRepository

const (
	queryCreatePredictionsTable = `
		CREATE TABLE IF NOT EXISTS predictions (
			id          VARCHAR(26) PRIMARY KEY,
			request_id  VARCHAR(64) NOT NULL,
			subject     VARCHAR(255),
			filename    VARCHAR(255),
			weights     TEXT NOT NULL,
			engine      VARCHAR(32) NOT NULL,
			detections  INTEGER NOT NULL,
			cached      BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms  BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS predictions_created_at_idx ON predictions (created_at DESC);
	`

	queryCreatePrediction = `
		INSERT INTO predictions (
			id,
			request_id,
			subject,
			filename,
			weights,
			engine,
			detections,
			cached,
			latency_ms,
			created_at
		) VALUES (
			:id,
			:request_id,
			:subject,
			:filename,
			:weights,
			:engine,
			:detections,
			:cached,
			:latency_ms,
			:created_at
		)
	`

	queryGetRecentPredictions = `
		SELECT
			id,
			request_id,
			subject,
			filename,
			weights,
			engine,
			detections,
			cached,
			latency_ms,
			created_at
		FROM predictions
		ORDER BY created_at DESC, id DESC
		LIMIT :limit OFFSET :offset
	`

	queryCountPredictions = `
		SELECT COUNT(*)
		FROM predictions
	`
)
