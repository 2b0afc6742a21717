package detectionHandler

import (
	"HouseDetection/internal/api/detection"
	"HouseDetection/internal/entity"
	contextPkg "HouseDetection/pkg/context"
	"HouseDetection/pkg/handlerUtil"
	"HouseDetection/pkg/log"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
	"net/http"
	"strings"
	"time"
)

const (
	wsRequestIDKey = "ws_request_id"
	wsSubjectKey   = "ws_subject"
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handlePredictWebSocket answers every binary frame with the detections for
// that frame. Failures are reported on the socket and the loop continues.
// Frames over the upload limit close the connection with 1009.
func (h *DetectionHandler) handlePredictWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(wsRequestIDKey).(string)
	subject, _ := c.Locals(wsSubjectKey).(string)
	entry := h.log.WithField("request_id", requestID)

	entry.Info("Predict WebSocket client connected")
	defer entry.Info("Predict WebSocket client disconnected")

	if h.maxFrameBytes > 0 {
		c.SetReadLimit(h.maxFrameBytes)
	}

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			entry.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			entry.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.Errorf("Predict WebSocket error: %v", err)
			} else {
				entry.WithError(err).Debug("Predict WebSocket read ended")
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			entry.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var reply interface{}
		detections, err := h.predictFrame(requestID, subject, message)
		if err != nil {
			entry.WithError(err).Warn("Error processing frame")
			reply = handlerUtil.ErrorResponse{Detail: err.Error()}
		} else {
			reply = detection.PredictResponse(detections)
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			entry.Errorf("Error setting write deadline: %v", err)
			break
		}
		if err := c.WriteJSON(reply); err != nil {
			entry.Errorf("Error writing JSON response: %v", err)
			break
		}
	}
}

func (h *DetectionHandler) predictFrame(requestID, subject string, frame []byte) ([]entity.Detection, error) {
	contentType := http.DetectContentType(frame)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, detection.ErrUnsupportedMediaType
	}

	ctx := contextPkg.WithRequestID(context.Background(), requestID)
	var cancel context.CancelFunc = func() {}
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	defer cancel()

	upload := detection.Upload{
		ContentType: contentType,
		Data:        frame,
		Subject:     subject,
	}
	if err := h.validator.Struct(upload); err != nil {
		return nil, err
	}

	log.WithRequestID(ctx).WithField("size", len(frame)).Debug("Processing websocket frame")
	return h.detectionService.Predict(ctx, upload)
}
