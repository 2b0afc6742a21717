package websocketPkg

import (
	"HouseDetection/internal/entity"
	"HouseDetection/pkg/detector"
	"HouseDetection/pkg/utils"
	"context"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"strconv"
	"sync"
	"time"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	actionLoad    = "load"
	actionPredict = "predict"
)

type request struct {
	Action  string `json:"action"`
	Weights string `json:"weights"`
	Image   string `json:"image,omitempty"`
}

type response struct {
	Names  map[string]string `json:"names,omitempty"`
	Result *entity.RawResult `json:"result"`
	Error  string            `json:"error,omitempty"`
}

// webSocketClient talks to a model sidecar over one persistent connection.
// A request and its reply are exchanged under mu, so replies cannot be
// picked up by another caller.
type webSocketClient struct {
	url          string
	weightsPath  string
	log          *logrus.Logger
	conn         *websocket.Conn
	mu           sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

// Open returns an Opener for a sidecar listening at url. The sidecar loads
// the weights on the first message and reports its class names.
func Open(log *logrus.Logger, url string) detector.Opener {
	return func(weightsPath string) (detector.Engine, map[int]string, error) {
		if url == "" {
			return nil, nil, errors.New("detector websocket URL not configured")
		}

		c := &webSocketClient{
			url:          url,
			weightsPath:  weightsPath,
			log:          log,
			pingInterval: 30 * time.Second,
			readTimeout:  60 * time.Second,
			writeTimeout: 5 * time.Second,
			done:         make(chan struct{}),
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		if err := c.reconnectLocked(); err != nil {
			return nil, nil, err
		}

		resp, err := c.roundTripLocked(context.Background(), request{
			Action:  actionLoad,
			Weights: weightsPath,
		})
		if err != nil {
			c.abortLocked()
			return nil, nil, fmt.Errorf("load weights on sidecar: %w", err)
		}

		names, err := parseNames(resp.Names)
		if err != nil {
			c.abortLocked()
			return nil, nil, err
		}
		return c, names, nil
	}
}

func (c *webSocketClient) Predict(ctx context.Context, imagePath string) (*entity.RawResult, error) {
	image, err := utils.EncodeFileToBase64(imagePath)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.reconnectLocked(); err != nil {
			return nil, fmt.Errorf("cannot connect to detection service: %w", err)
		}
	}

	c.log.WithField("size", len(image)).Debug("Sending frame to detection service")

	resp, err := c.roundTripLocked(ctx, request{
		Action:  actionPredict,
		Weights: c.weightsPath,
		Image:   image,
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *webSocketClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	c.dropLocked()
	return nil
}

func (c *webSocketClient) reconnectLocked() error {
	c.dropLocked()

	c.log.Infof("Connecting to detection service at %s", c.url)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

// roundTripLocked sends one request and waits for its reply. Transport
// failures drop the connection so the next call redials.
func (c *webSocketClient) roundTripLocked(ctx context.Context, req request) (*response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	conn := c.conn
	conn.SetWriteDeadline(c.deadline(ctx, c.writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("error sending %s message: %w", req.Action, err)
	}

	conn.SetReadDeadline(c.deadline(ctx, c.readTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("error reading %s reply: %w", req.Action, err)
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	var resp response
	if err := json.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling %s reply: %w", req.Action, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detection service: %s", resp.Error)
	}
	return &resp, nil
}

func (c *webSocketClient) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func (c *webSocketClient) abortLocked() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.dropLocked()
}

func (c *webSocketClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping failed for detection service, marking connection as dead: %v", err)
			c.dropLocked()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func parseNames(raw map[string]string) (map[int]string, error) {
	names := make(map[int]string, len(raw))
	for key, name := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("invalid class id %q from detection service", key)
		}
		names[id] = name
	}
	return names, nil
}
