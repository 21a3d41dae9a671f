package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-export/internal/config"
	"pdf-export/internal/infra/browser"
	"pdf-export/internal/infra/chrome"
	"pdf-export/internal/infra/logging"
	"pdf-export/internal/infra/rodengine"
	"pdf-export/internal/tokens"
)

type fakeEngine struct {
	calls atomic.Int64
	gate  *browser.Gate
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{gate: browser.NewGate(2, 0)}
}

func (e *fakeEngine) Render(ctx context.Context, document string) ([]byte, error) {
	e.calls.Add(1)
	return []byte("%PDF-1.7\n" + document), nil
}

func (e *fakeEngine) Stats() browser.Stats { return e.gate.Stats() }
func (e *fakeEngine) Close() error         { e.gate.Close(); return nil }

func TestNew_ExportRouteAndJSON404(t *testing.T) {
	engine := newFakeEngine()
	app := New(Deps{Config: config.Default(), Engine: engine})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/success?html=hi", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	assert.EqualValues(t, 1, engine.calls.Load())

	resp404, err := app.Test(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp404.StatusCode)
	assert.Contains(t, resp404.Header.Get("Content-Type"), "application/json")
	assert.Equal(t, "*", resp404.Header.Get("Access-Control-Allow-Origin"))

	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp404.Body).Decode(&body))
	assert.Equal(t, fiber.StatusNotFound, body.Error.Code)
	assert.Equal(t, "Not Found", body.Error.Message)
}

func TestNew_JSONEncodedHTMLUnderLimitReachesHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxHTMLBytes = 400_000
	engine := newFakeEngine()
	app := New(Deps{Config: cfg, Engine: engine})

	// Markup-heavy HTML grows about four times when json.Marshal escapes it.
	html := strings.Repeat("<b>&</b>", 48_000)
	require.LessOrEqual(t, len(html), cfg.Limits.MaxHTMLBytes)
	payload, err := json.Marshal(map[string]string{"html": html})
	require.NoError(t, err)
	require.Greater(t, len(payload), cfg.Limits.MaxHTMLBytes+bodySlack)

	req := httptest.NewRequest(http.MethodPost, "/api/success", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.EqualValues(t, 1, engine.calls.Load())
}

func TestNew_HTMLOverLimitGetsHandlerBody(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxHTMLBytes = 1000
	engine := newFakeEngine()
	app := New(Deps{Config: cfg, Engine: engine})

	payload, err := json.Marshal(map[string]string{"html": strings.Repeat("a", 1001)})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/success", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "HTML content too large", body["error"])
	assert.Zero(t, engine.calls.Load())
}

func TestNew_TransportBodyLimitKeepsCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.MaxHTMLBytes = 1000
	app := New(Deps{Config: cfg, Engine: newFakeEngine()})

	req := httptest.NewRequest(http.MethodPost, "/api/success", strings.NewReader(strings.Repeat("a", BodyLimit(1000)+1)))
	req.Header.Set("Content-Type", "text/plain")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestNew_MissingBrowserIsLaunchFailure(t *testing.T) {
	for _, engine := range []string{config.EngineChromedp, config.EngineRod} {
		t.Run(engine, func(t *testing.T) {
			cfg := config.Default()
			cfg.PDF.Engine = engine
			cfg.PDF.ChromePath = "/definitely/missing/chrome"
			cfg.PDF.UserDataDir = t.TempDir()
			app := New(Deps{Config: cfg})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/success?html=hello", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
			assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Failed to generate PDF", body["error"])
			assert.Equal(t, "launch", body["kind"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestBodyLimit_CoversEscapedJSON(t *testing.T) {
	html := strings.Repeat("<", 1000)
	payload, err := json.Marshal(map[string]string{"html": html})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(payload), BodyLimit(len(html)))
}

func TestNew_CustomRouteAndMethodNotAllowed(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Route = "/export"
	app := New(Deps{Config: cfg, Engine: newFakeEngine()})

	resp, err := app.Test(httptest.NewRequest(http.MethodPut, "/export", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodOptions, "/export", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNew_OpsRoutes(t *testing.T) {
	app := New(Deps{Config: config.Default(), Engine: newFakeEngine()})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ops/browsers", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "chromedp", body["engine"])

	for _, path := range []string{"/ops/health", "/ops/ready", "/ops/monitor"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err, path)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}
}

func TestNew_AuthEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Enabled = true

	cache := tokens.NewCache()
	app := New(Deps{Config: cfg, Engine: newFakeEngine(), Tokens: cache})

	// Not ready until the first token load.
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ops/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	cache.Replace(map[string]int{"good": 10})

	req := httptest.NewRequest(http.MethodGet, "/api/success?html=x", nil)
	req.Header.Set("X-API-Key", "bad")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/success?html=x", nil)
	req.Header.Set("X-API-Key", "good")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	pre, err := app.Test(httptest.NewRequest(http.MethodOptions, "/api/success", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, pre.StatusCode)
	assert.Equal(t, "Content-Type, X-API-Key", pre.Header.Get("Access-Control-Allow-Headers"))
}

func TestNew_CacheServesRepeatRenders(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Default()
	cfg.Cache.PDFCacheEnabled = true
	engine := newFakeEngine()
	app := New(Deps{Config: cfg, Engine: engine, Redis: rdb})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/success", strings.NewReader("<p>cached</p>"))
		req.Header.Set("Content-Type", "text/plain")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
		body, _ := io.ReadAll(resp.Body)
		assert.True(t, strings.HasPrefix(string(body), "%PDF-"))
	}
	assert.EqualValues(t, 1, engine.calls.Load())
}

func TestNewEngine_SelectsByConfig(t *testing.T) {
	cfg := config.Default()
	e := NewEngine(cfg)
	_, ok := e.(*chrome.Renderer)
	assert.True(t, ok)
	assert.Equal(t, 4, e.Stats().Capacity)
	require.NoError(t, e.Close())

	cfg.PDF.Engine = config.EngineRod
	cfg.PDF.MaxConcurrentBrowsers = 1
	e = NewEngine(cfg)
	_, ok = e.(*rodengine.Renderer)
	assert.True(t, ok)
	assert.Equal(t, 1, e.Stats().Capacity)
	require.NoError(t, e.Close())
}

func TestPageSettings_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.PDF.PaperFormat = "letter"
	off := false
	cfg.PDF.PrintBackground = &off

	s := PageSettings(cfg)
	assert.Equal(t, 8.5, s.PaperWidth)
	assert.Equal(t, 11.0, s.PaperHeight)
	assert.Equal(t, 794, s.ViewportWidth)
	assert.Equal(t, 0.5, s.Margin)
	assert.False(t, s.PrintBackground)
	assert.Equal(t, cfg.PDF.LoadTimeout, s.LoadTimeout)
}

func TestErrorHandler_LogsReasonField(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLoggerForTest(zerolog.New(&buf))
	t.Cleanup(func() { logging.SetLoggerForTest(zerolog.New(os.Stdout).With().Timestamp().Logger()) })

	app := New(Deps{Config: config.Default(), Engine: newFakeEngine()})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var entry map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(line), &m) == nil && m["message"] == "Request failed" {
			entry = m
		}
	}
	require.NotNil(t, entry, buf.String())
	assert.Equal(t, "Not Found", entry["reason"])
	assert.EqualValues(t, fiber.StatusNotFound, entry["status"])
}
