package detectionHandler_test

import (
	detectionRepository "HouseDetection/internal/api/detection/repository"
	"HouseDetection/internal/config"
	"HouseDetection/internal/entity"
	"HouseDetection/pkg/detector"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	gorillaws "github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const pngMagic = "\x89PNG\r\n\x1a\n"

// stubEngine answers with one box whose class id is the staged file content
// (after an optional PNG signature), or with the configured error.
type stubEngine struct {
	mu   sync.Mutex
	err  error
	seen []string
}

func (e *stubEngine) Predict(_ context.Context, imagePath string) (*entity.RawResult, error) {
	e.mu.Lock()
	e.seen = append(e.seen, imagePath)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(string(raw), pngMagic)))
	if err != nil {
		return &entity.RawResult{}, nil
	}
	return &entity.RawResult{Boxes: []entity.RawBox{
		{XYXY: [4]float64{10, 20, 110, 220}, Score: 0.91666, ClassID: id},
	}}, nil
}

func (e *stubEngine) Close() error { return nil }

type testServer struct {
	app     *fiber.App
	staging string
	engine  *stubEngine
}

func newTestServer(t *testing.T, mutate func(cfg *config.AppConfig), extra ...config.ServerOption) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	weights := filepath.Join(t.TempDir(), "best.onnx")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0o600))

	engine := &stubEngine{}
	handle, err := detector.Load(logger, weights, func(string) (detector.Engine, map[int]string, error) {
		return engine, map[int]string{0: "house"}, nil
	}, detector.WithEngineName(config.EngineONNX))
	require.NoError(t, err)

	cfg := &config.AppConfig{
		Port:           "3000",
		WeightsPath:    weights,
		Engine:         config.EngineONNX,
		StagingDir:     t.TempDir(),
		MaxUploadMB:    1,
		PredictTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(cfg)
	}

	opts := []config.ServerOption{
		config.WithFiber(config.NewFiber(logger, cfg.MaxUploadBytes())),
		config.WithLogger(logger),
		config.WithConfig(cfg),
		config.WithDetector(handle),
		config.WithMiddleware(),
		config.WithUtils(),
	}
	server, err := config.NewServer(append(opts, extra...)...)
	require.NoError(t, err)
	server.RegisterHandler()

	return &testServer{app: server.App(), staging: cfg.StagingDir, engine: engine}
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return body, w.FormDataContentType()
}

func predictRequest(t *testing.T, field, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	body, formType := multipartBody(t, field, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(fiber.HeaderContentType, formType)
	return req
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

// listen serves app on a loopback port for tests that need a real connection.
func listen(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(time.Second) })

	return ln.Addr().String()
}

func (e *stubEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

func detail(t *testing.T, body string) string {
	t.Helper()
	var out struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out.Detail
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPredictSuccess(t *testing.T) {
	srv := newTestServer(t, nil)

	req := predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0"))
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"class":"house","score":0.9167,"bbox":[10,20,110,220]}]`, string(raw))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assertStagingEmpty(t, srv.staging)
}

func TestPredictOtherFieldName(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv.app, predictRequest(t, "image", "house.png", "image/png", []byte("0")))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"class":"house","score":0.9167,"bbox":[10,20,110,220]}]`, body)
}

func TestPredictNoDetections(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv.app, predictRequest(t, "file", "field.jpg", "image/jpeg", []byte("no houses")))
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, body)
	assertStagingEmpty(t, srv.staging)
}

func TestPredictRejectsNonImage(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv.app, predictRequest(t, "file", "notes.txt", "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusUnsupportedMediaType, status)
	assert.Equal(t, "the uploaded file must be an image (.jpg, .png, etc.)", detail(t, body))
	assert.Empty(t, srv.engine.seen)
}

func TestPredictRequiresFile(t *testing.T) {
	srv := newTestServer(t, nil)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())

	status, raw := do(t, srv.app, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, detail(t, raw))
}

func TestPredictTooLarge(t *testing.T) {
	srv := newTestServer(t, nil)
	addr := listen(t, srv.app)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// The declared length alone is over the 1 MB limit, so no body is sent.
	_, err = fmt.Fprintf(conn, "POST /predict HTTP/1.1\r\nHost: %s\r\nContent-Type: multipart/form-data; boundary=x\r\nContent-Length: %d\r\n\r\n", addr, 2*1024*1024)
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.NotEmpty(t, detail(t, string(raw)))
	assert.Zero(t, srv.engine.calls())
}

func TestPredictInferenceFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.engine.err = errors.New("cuda out of memory")

	status, body := do(t, srv.app, predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0")))
	assert.Equal(t, http.StatusInternalServerError, status)

	msg := detail(t, body)
	assert.True(t, strings.HasPrefix(msg, "error during inference: "), msg)
	assert.Contains(t, msg, "cuda out of memory")
	assertStagingEmpty(t, srv.staging)
}

func TestPredictEmptyImageIsInferenceFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.engine.err = errors.New("decode image: EOF")

	status, body := do(t, srv.app, predictRequest(t, "file", "empty.jpg", "image/jpeg", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.True(t, strings.HasPrefix(detail(t, body), "error during inference: "), body)
	assert.Equal(t, 1, srv.engine.calls())
	assertStagingEmpty(t, srv.staging)
}

func TestPredictConcurrentRequests(t *testing.T) {
	srv := newTestServer(t, nil)

	const n = 16
	var wg sync.WaitGroup
	bodies := make([]string, n)
	statuses := make([]int, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := predictRequest(t, "file", "same-name.jpg", "image/jpeg", []byte(strconv.Itoa(i+1)))
			resp, err := srv.app.Test(req, -1)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			raw, _ := io.ReadAll(resp.Body)
			statuses[i], bodies[i] = resp.StatusCode, string(raw)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.Equal(t, http.StatusOK, statuses[i], bodies[i])
		var dets []entity.Detection
		require.NoError(t, json.Unmarshal([]byte(bodies[i]), &dets))
		require.Len(t, dets, 1)
		assert.Equal(t, strconv.Itoa(i+1), dets[0].Class)
	}
	assertStagingEmpty(t, srv.staging)
}

func TestPredictRateLimited(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 1
	})

	status, _ := do(t, srv.app, predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0")))
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, srv.app, predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0")))
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "too many requests", detail(t, body))
}

func TestPredictWithAuth(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.AuthEnabled = true
		cfg.JWTSecret = secret
	})

	status, _ := do(t, srv.app, predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0")))
	assert.Equal(t, http.StatusUnauthorized, status)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "surveyor-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	req := predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0"))
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	status, _ = do(t, srv.app, req)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, status)

	var health struct {
		Status  string            `json:"status"`
		Engine  string            `json:"engine"`
		Classes map[string]string `json:"classes"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "onnx", health.Engine)
	assert.Equal(t, map[string]string{"0": "house"}, health.Classes)
}

func TestPredictWebSocketRequiresUpgrade(t *testing.T) {
	srv := newTestServer(t, nil)

	status, _ := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/predict/ws", nil))
	assert.Equal(t, http.StatusUpgradeRequired, status)
}

func dialPredictSocket(t *testing.T, addr string) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial("ws://"+addr+"/predict/ws", nil)
	require.NoError(t, err)
	return conn
}

func readReply(t *testing.T, conn *gorillaws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	messageType, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, gorillaws.TextMessage, messageType)
	return string(raw)
}

func TestPredictWebSocketRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialPredictSocket(t, listen(t, srv.app))
	defer conn.Close()

	// Text frames get no reply, so the first reply belongs to the image.
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, []byte(pngMagic+"0")))
	assert.JSONEq(t, `[{"class":"house","score":0.9167,"bbox":[10,20,110,220]}]`, readReply(t, conn))

	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, []byte("plain text bytes")))
	assert.Equal(t, "the uploaded file must be an image (.jpg, .png, etc.)", detail(t, readReply(t, conn)))

	require.NoError(t, conn.WriteMessage(gorillaws.BinaryMessage, []byte(pngMagic+"no houses")))
	assert.JSONEq(t, `[]`, readReply(t, conn))

	assert.Equal(t, 2, srv.engine.calls())
	assertStagingEmpty(t, srv.staging)
}

func TestPredictWebSocketFrameLimit(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := dialPredictSocket(t, listen(t, srv.app))
	defer conn.Close()

	frame := append([]byte(pngMagic), bytes.Repeat([]byte("0"), 2*1024*1024)...)
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_ = conn.WriteMessage(gorillaws.BinaryMessage, frame)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Zero(t, srv.engine.calls())
}

type memoryPredictions struct {
	mu    sync.Mutex
	items []entity.Prediction
}

func (m *memoryPredictions) CreatePrediction(_ context.Context, p entity.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, p)
	return nil
}

func (m *memoryPredictions) GetRecentPredictions(_ context.Context, limit, offset int) ([]entity.Prediction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []entity.Prediction{}
	for i := len(m.items) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.items[i])
	}
	return out, len(m.items), nil
}

type memoryRepository struct {
	predictions *memoryPredictions
}

func (r *memoryRepository) NewClient(bool) (detectionRepository.Client, error) {
	return detectionRepository.Client{
		Predictions: r.predictions,
		Commit:      func() error { return nil },
		Rollback:    func() error { return nil },
	}, nil
}

func (r *memoryRepository) Migrate(context.Context) error { return nil }

func TestPredictionHistory(t *testing.T) {
	repo := &memoryRepository{predictions: &memoryPredictions{}}
	srv := newTestServer(t, nil, config.WithRepository(repo))

	for i := 0; i < 3; i++ {
		status, _ := do(t, srv.app, predictRequest(t, "file", "house.jpg", "image/jpeg", []byte("0")))
		require.Equal(t, http.StatusOK, status)
	}

	status, body := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/predictions?limit=2", nil))
	require.Equal(t, http.StatusOK, status)

	var history struct {
		Items []entity.Prediction `json:"items"`
		Total int                 `json:"total"`
		Limit int                 `json:"limit"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &history))
	assert.Equal(t, 3, history.Total)
	assert.Equal(t, 2, history.Limit)
	require.Len(t, history.Items, 2)
	assert.Equal(t, "house.jpg", history.Items[0].Filename)
	assert.NotEmpty(t, history.Items[0].RequestID)
}

func TestPredictionHistoryRateLimitedOnce(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.AppConfig) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 2
	}, config.WithRepository(&memoryRepository{predictions: &memoryPredictions{}}))

	for i := 0; i < 2; i++ {
		status, body := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/predictions", nil))
		require.Equal(t, http.StatusOK, status, body)
	}

	status, _ := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/predictions", nil))
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestPredictionHistoryInvalidQuery(t *testing.T) {
	srv := newTestServer(t, nil, config.WithRepository(&memoryRepository{predictions: &memoryPredictions{}}))

	for _, target := range []string{"/predictions?limit=0", "/predictions?limit=500", "/predictions?offset=-1", "/predictions?limit=abc"} {
		status, _ := do(t, srv.app, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, status, target)
	}
}

func TestPredictionHistoryDisabled(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv.app, httptest.NewRequest(http.MethodGet, "/predictions", nil))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "prediction history is not enabled", detail(t, body))
}
