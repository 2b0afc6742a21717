package detection

import "HouseDetection/internal/entity"

// PredictResponse is the body of a successful prediction: a bare JSON array.
type PredictResponse []entity.Detection

type HealthResponse struct {
	Status  string         `json:"status"`
	Engine  string         `json:"engine"`
	Weights string         `json:"weights"`
	Classes map[int]string `json:"classes"`
}

// Upload is one staged image as handed from the handler to the service.
// Empty or undecodable data is left to the engine and fails as inference.
type Upload struct {
	Filename    string `validate:"omitempty,max=255"`
	ContentType string `validate:"required,startswith=image/"`
	Data        []byte
	Subject     string
}

type HistoryQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

type HistoryResponse struct {
	Items  []entity.Prediction `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}
