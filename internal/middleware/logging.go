package middleware

import (
	"HouseDetection/pkg/log"
	"github.com/gofiber/fiber/v2"
	"time"
)

// NewLoggingMiddleware writes one access log line per request. Bodies are
// not logged, uploads are binary images.
func (m *middleware) NewLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logFields := log.Fields{
			"request_id":     m.GetRequestID(c),
			"method":         c.Method(),
			"path":           c.Path(),
			"status":         status,
			"latency_ms":     latency.Milliseconds(),
			"ip":             c.IP(),
			"user_agent":     c.Get(fiber.HeaderUserAgent),
			"content_type":   c.Get(fiber.HeaderContentType),
			"content_length": c.Request().Header.ContentLength(),
			"response_size":  len(c.Response().Body()),
		}

		entry := m.log.WithFields(logFields)
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("Server error")
		case status >= fiber.StatusBadRequest:
			entry.Warn("Client error")
		default:
			entry.Info("Success")
		}

		return err
	}
}
