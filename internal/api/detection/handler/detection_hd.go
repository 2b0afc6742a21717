package detectionHandler

import (
	"HouseDetection/internal/api/detection"
	contextPkg "HouseDetection/pkg/context"
	"HouseDetection/pkg/handlerUtil"
	jwtPkg "HouseDetection/pkg/jwt"
	"HouseDetection/pkg/log"
	"HouseDetection/pkg/utils"
	"errors"
	"github.com/gofiber/fiber/v2"
	"io"
	"mime/multipart"
	"sort"
)

const (
	uploadField         = "file"
	defaultHistoryLimit = 20
)

func (h *DetectionHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := contextPkg.WithTimeout(ctx, h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	fields := log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}
	subject := ""
	if principal, err := jwtPkg.GetPrincipal(ctx); err == nil {
		subject = principal.Subject
		fields["subject"] = subject
	}
	h.log.WithFields(fields).Debug("Processing predict request")

	file, err := h.uploadedFile(ctx)
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.ErrFileRequired, ctx.Path(), "read_form_file")
	}

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, mapValidationError(err), ctx.Path(), "validate_image_file")
	}

	data, err := readUpload(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection.NewInferenceError(err), ctx.Path(), "read_upload")
	}

	upload := detection.Upload{
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Data:        data,
		Subject:     subject,
	}
	if err := h.validator.Struct(upload); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	detections, err := h.detectionService.Predict(c, upload)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "predict")
	}

	h.log.WithFields(fields).WithFields(log.Fields{
		"file_name":  file.Filename,
		"file_size":  file.Size,
		"detections": len(detections),
	}).Info("Prediction successful")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, detection.PredictResponse(detections))
}

func (h *DetectionHandler) History(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := contextPkg.WithTimeout(ctx, h.timeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	query := detection.HistoryQuery{Limit: defaultHistoryLimit}
	if err := ctx.QueryParser(&query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(query); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	history, err := h.detectionService.History(c, query)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "history")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, history)
}

func (h *DetectionHandler) Health(ctx *fiber.Ctx) error {
	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, h.detectionService.Health())
}

// uploadedFile returns the "file" part, or the first file part of the form
// when the client used another field name.
func (h *DetectionHandler) uploadedFile(ctx *fiber.Ctx) (*multipart.FileHeader, error) {
	if file, err := ctx.FormFile(uploadField); err == nil {
		return file, nil
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(form.File))
	for key := range form.File {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if files := form.File[key]; len(files) > 0 {
			return files[0], nil
		}
	}
	return nil, errors.New("no file part in form")
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return io.ReadAll(src)
}

func mapValidationError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNotAnImage):
		return detection.ErrUnsupportedMediaType
	case errors.Is(err, utils.ErrFileTooLarge):
		return detection.ErrFileTooLarge
	default:
		return detection.ErrFileRequired
	}
}
