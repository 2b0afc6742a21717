package entity

import "time"

// Prediction is one served detection request as kept in the history log.
type Prediction struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Subject    string    `json:"subject,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Weights    string    `json:"weights"`
	Engine     string    `json:"engine"`
	Detections int       `json:"detections"`
	Cached     bool      `json:"cached"`
	LatencyMS  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
