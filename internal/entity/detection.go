package entity

// Detection is one normalized detected object as returned to API clients.
type Detection struct {
	Class string     `json:"class"`
	Score float64    `json:"score"`
	BBox  [4]float64 `json:"bbox"`
}

// RawBox is a single engine output box in source image pixel space.
type RawBox struct {
	XYXY    [4]float64 `json:"xyxy"`
	Score   float64    `json:"conf"`
	ClassID int        `json:"cls"`
}

// RawResult is the engine result container for one image. A nil *RawResult
// means the engine produced no container at all.
type RawResult struct {
	Boxes []RawBox `json:"boxes"`
}
