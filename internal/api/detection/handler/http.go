package detectionHandler

import (
	detectionService "HouseDetection/internal/api/detection/service"
	"HouseDetection/internal/middleware"
	jwtPkg "HouseDetection/pkg/jwt"
	"HouseDetection/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

type DetectionHandler struct {
	log              *logrus.Logger
	validator        *validator.Validate
	middleware       middleware.Middleware
	detectionService detectionService.IDetectionService
	utils            utils.IUtils
	timeout          time.Duration
	maxFrameBytes    int64
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ds detectionService.IDetectionService,
	utils utils.IUtils,
	timeout time.Duration,
	maxFrameBytes int64,
) *DetectionHandler {
	return &DetectionHandler{
		detectionService: ds,
		log:              log,
		validator:        validator,
		middleware:       middleware,
		utils:            utils,
		timeout:          timeout,
		maxFrameBytes:    maxFrameBytes,
	}
}

func (h *DetectionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals(wsRequestIDKey, h.middleware.GetRequestID(c))
			if principal, err := jwtPkg.GetPrincipal(c); err == nil {
				c.Locals(wsSubjectKey, principal.Subject)
			}
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	limit, auth := h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware

	srv.Post("/predict", limit, auth, h.Predict)
	srv.Get("/predict/ws", limit, auth, wsMiddleware, websocket.New(h.handlePredictWebSocket))
	srv.Get("/predictions", limit, auth, h.History)

	srv.Get("/health", h.Health)
}
