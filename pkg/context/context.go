package context

import (
	"context"
	"github.com/gofiber/fiber/v2"
	"time"
)

const (
	RequestIDKey = "request_id"
	headerKey    = "X-Request-ID"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}

// FromFiberCtx derives a request context carrying the request id. The result
// must not outlive the handler, fiber reuses its contexts.
func FromFiberCtx(c *fiber.Ctx) context.Context {
	requestID, ok := c.Locals(headerKey).(string)
	if !ok || requestID == "" {
		requestID = c.Get(headerKey)

		if requestID == "" {
			requestID = "unknown"
		}
	}

	return WithRequestID(c.UserContext(), requestID)
}

// WithTimeout is FromFiberCtx bounded by timeout. A non-positive timeout
// leaves the context without deadline.
func WithTimeout(c *fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := FromFiberCtx(c)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
