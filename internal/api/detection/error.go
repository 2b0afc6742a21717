package detection

import (
	"HouseDetection/pkg/response"
	"fmt"
	"net/http"
)

var (
	ErrFileRequired         = response.NewError(http.StatusBadRequest, "an image file is required in the 'file' form field")
	ErrUnsupportedMediaType = response.NewError(http.StatusUnsupportedMediaType, "the uploaded file must be an image (.jpg, .png, etc.)")
	ErrFileTooLarge         = response.NewError(http.StatusRequestEntityTooLarge, "the uploaded image is too large")
	ErrInternalServerError  = response.NewError(http.StatusInternalServerError, "internal server error")
	ErrHistoryDisabled      = response.NewError(http.StatusNotFound, "prediction history is not enabled")
)

// NewInferenceError reports a staging or detection failure with its cause.
func NewInferenceError(err error) error {
	return response.Wrap(http.StatusInternalServerError, fmt.Errorf("error during inference: %w", err))
}
