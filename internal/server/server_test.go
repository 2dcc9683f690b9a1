// File: internal/server/server_test.go
package server_test

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	jsoniter "github.com/json-iterator/go"

	"github.com/robit-man/web-scrape-service/api/schemas"
	"github.com/robit-man/web-scrape-service/internal/config"
	"github.com/robit-man/web-scrape-service/internal/driver"
	"github.com/robit-man/web-scrape-service/internal/events"
	"github.com/robit-man/web-scrape-service/internal/frames"
	"github.com/robit-man/web-scrape-service/internal/gate"
	"github.com/robit-man/web-scrape-service/internal/ratelimit"
	"github.com/robit-man/web-scrape-service/internal/server"
	"github.com/robit-man/web-scrape-service/internal/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// stubHandle is a driver handle whose operations succeed instantly, except
// when block is set, in which case they stall until it is closed.
type stubHandle struct {
	mu    sync.Mutex
	block chan struct{}
	calls int
}

func (h *stubHandle) op() error {
	h.mu.Lock()
	blocker := h.block
	h.calls++
	h.mu.Unlock()
	if blocker != nil {
		<-blocker
	}
	return nil
}

func (h *stubHandle) Navigate(context.Context, string) error         { return h.op() }
func (h *stubHandle) Click(context.Context, string) error            { return h.op() }
func (h *stubHandle) TypeText(context.Context, string, string) error { return h.op() }
func (h *stubHandle) Scroll(context.Context, string, int) error      { return h.op() }
func (h *stubHandle) History(context.Context, string) error          { return h.op() }
func (h *stubHandle) Close(context.Context) error                    { return nil }

func (h *stubHandle) ClickAt(context.Context, float64, float64, float64, float64) (*schemas.HitTestResult, error) {
	if err := h.op(); err != nil {
		return nil, err
	}
	return &schemas.HitTestResult{OK: true, Tag: "A"}, nil
}

func (h *stubHandle) SnapshotDOM(context.Context) (string, error) {
	if err := h.op(); err != nil {
		return "", err
	}
	return "<html><head><title>Stub Page</title></head><body>hi</body></html>", nil
}

func (h *stubHandle) CaptureScreenshot(context.Context) ([]byte, int, int, error) {
	if err := h.op(); err != nil {
		return nil, 0, 0, err
	}
	return []byte("fake-png"), 640, 480, nil
}

type stubDriver struct {
	mu     sync.Mutex
	handle *stubHandle
}

func (d *stubDriver) Launch(context.Context, bool) (driver.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handle = &stubHandle{}
	return d.handle, nil
}

type fixture struct {
	cfg *config.Config
	drv *stubDriver
	ts  *httptest.Server
}

// newFixture assembles the production handler tree over a stub driver.
// mutate tweaks the defaults before components are built.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("frames.dir", t.TempDir())
	v.Set("limits.rate_limit_burst", 100)
	v.Set("limits.queue_timeout", "100ms")
	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	limiter := ratelimit.New(cfg.Limits().RateLimitRate, cfg.Limits().RateLimitBurst,
		cfg.Limits().BucketIdleTTL, logger)
	g := gate.New(cfg.Limits().MaxConcurrency)
	bus := events.NewBus(logger, cfg.Events().BufferDepth)
	frameStore, err := frames.NewStore(cfg.Frames().Dir, cfg.Frames().TTL, cfg.Frames().SweepInterval, logger)
	require.NoError(t, err)

	drv := &stubDriver{}
	manager := session.NewManager(drv, g, bus, frameStore, cfg.Limits().QueueTimeout, logger)
	srv := server.New(cfg, logger, limiter, g, bus, manager, frameStore)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{cfg: cfg, drv: drv, ts: ts}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(f.ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp, decodeMap(t, resp)
}

func (f *fixture) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeMap(t, resp)
}

func decodeMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func (f *fixture) startSession(t *testing.T) string {
	t.Helper()
	resp, body := f.postJSON(t, "/session/start", map[string]any{"headless": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid, _ := body["session_id"].(string)
	require.NotEmpty(t, sid)
	return sid
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["browser_open"])
	assert.Equal(t, float64(2), body["capacity"])

	f.startSession(t)
	_, body = f.get(t, "/health")
	assert.Equal(t, true, body["browser_open"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.ServerCfg.RequireAuth = true
		cfg.ServerCfg.APIKey = "sekrit"
	})

	// Health stays open.
	resp, _ := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No credential.
	resp, body := f.postJSON(t, "/session/start", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	// Header credential.
	req, _ := http.NewRequest(http.MethodPost, f.ts.URL+"/session/start", strings.NewReader("{}"))
	req.Header.Set("X-API-Key", "sekrit")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeMap(t, resp2)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// Bearer credential.
	req, _ = http.NewRequest(http.MethodPost, f.ts.URL+"/session/close", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer sekrit")
	resp3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeMap(t, resp3)
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestRateLimitWithRetryHint(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.LimitsCfg.RateLimitBurst = 2
		cfg.LimitsCfg.RateLimitRate = 0.001 // effectively no refill within the test
	})

	var last *http.Response
	for i := 0; i < 3; i++ {
		resp, _ := f.get(t, "/health")
		last = resp
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "1", last.Header.Get("Retry-After"))
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, nil)

	// Unknown route → 404 envelope.
	resp, body := f.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	// Malformed JSON → 400.
	httpResp, err := http.Post(f.ts.URL+"/navigate", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	body = decodeMap(t, httpResp)
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	assert.Equal(t, "validation", body["error"])

	// Dispatch with no session → 409.
	resp, body = f.postJSON(t, "/navigate", map[string]any{"sid": "x", "url": "https://example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "browser_not_open", body["error"])

	// Wrong sid while a session is open → 409 session_not_found.
	f.startSession(t)
	resp, body = f.postJSON(t, "/navigate", map[string]any{"sid": "other", "url": "https://example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "session_not_found", body["error"])
}

func TestAtCapacity(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.LimitsCfg.MaxConcurrency = 1
	})
	sid := f.startSession(t)

	blocker := make(chan struct{})
	f.drv.handle.mu.Lock()
	f.drv.handle.block = blocker
	f.drv.handle.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, _ := f.postJSON(t, "/scroll", map[string]any{"sid": sid})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}()

	// Wait for the first dispatch to occupy the only slot, then collide.
	require.Eventually(t, func() bool {
		f.drv.handle.mu.Lock()
		defer f.drv.handle.mu.Unlock()
		return f.drv.handle.calls >= 1
	}, time.Second, 5*time.Millisecond)

	resp, body := f.postJSON(t, "/scroll", map[string]any{"sid": sid})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "at_capacity", body["error"])

	close(blocker)
	<-done
}

func TestActionsAndEvents(t *testing.T) {
	f := newFixture(t, nil)
	sid := f.startSession(t)

	resp, body := f.postJSON(t, "/navigate", map[string]any{"sid": sid, "url": "https://example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "navigated", body["message"])

	resp, body = f.postJSON(t, "/click_xy", map[string]any{
		"sid": sid, "x": 10, "y": 20, "viewportW": 800, "viewportH": 600,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	hit, ok := body["hit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, hit["ok"])

	resp, body = f.get(t, "/dom?sid="+sid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stub Page", body["title"])
	assert.NotZero(t, body["length"])

	resp, body = f.get(t, "/screenshot?sid="+sid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	file, _ := body["file"].(string)
	require.True(t, strings.HasPrefix(file, "/frames/"))
	assert.Equal(t, float64(640), body["width"])

	// The stored frame is retrievable.
	frameResp, err := http.Get(f.ts.URL + file)
	require.NoError(t, err)
	defer frameResp.Body.Close()
	assert.Equal(t, http.StatusOK, frameResp.StatusCode)
	assert.Equal(t, "image/png", frameResp.Header.Get("Content-Type"))

	// Everything above landed in the recent ring, in order.
	resp, body = f.get(t, "/events/recent?sid="+sid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	evs, ok := body["events"].([]any)
	require.True(t, ok)
	require.GreaterOrEqual(t, len(evs), 4)
	first := evs[0].(map[string]any)
	assert.Equal(t, "browser_started", first["msg"])
}

func TestClickXYAliasSpellings(t *testing.T) {
	f := newFixture(t, nil)
	sid := f.startSession(t)

	bodies := []map[string]any{
		{"sid": sid, "x": 10, "y": 20, "viewport_w": 800, "viewport_h": 600},
		{"sid": sid, "x": 10, "y": 20, "viewport_width": 800, "viewport_height": 600},
		{"sid": sid, "x": 10, "y": 20, "viewportW": 800, "viewportH": 600, "naturalWidth": 1600, "naturalHeight": 1200},
	}
	for _, reqBody := range bodies {
		resp, body := f.postJSON(t, "/click_xy", reqBody)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "body %v", reqBody)
		assert.Equal(t, true, body["ok"], "body %v", reqBody)
	}
}

func TestClickXYValidation(t *testing.T) {
	f := newFixture(t, nil)
	sid := f.startSession(t)

	resp, body := f.postJSON(t, "/click_xy", map[string]any{
		"sid": sid, "x": 10, "y": 20, "viewportW": 0, "viewportH": 600,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["error"])
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.EventsCfg.HeartbeatInterval = 50 * time.Millisecond
	})
	sid := f.startSession(t)

	resp, err := http.Get(f.ts.URL + "/events?sid=" + sid)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if line = strings.TrimRight(line, "\n"); line != "" {
				lines <- line
			}
		}
	}()

	readLine := func() string {
		t.Helper()
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed early")
			}
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timed out reading from stream")
			return ""
		}
	}

	// Idle stream → heartbeat comment first.
	assert.Equal(t, ":", readLine())

	// A live event arrives as a data frame; no replay of browser_started,
	// which was published before attachment.
	_, _ = f.postJSON(t, "/navigate", map[string]any{"sid": sid, "url": "https://example.com"})
	line := readLine()
	for line == ":" {
		line = readLine()
	}
	require.True(t, strings.HasPrefix(line, "data: "), "got %q", line)

	var ev schemas.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
	assert.Equal(t, schemas.EventStatus, ev.Type)
	assert.Equal(t, "navigated", ev.Message)
	assert.Equal(t, sid, ev.SessionID)

	// Closing the session terminates the stream.
	_, _ = f.postJSON(t, "/session/close", nil)
	require.Eventually(t, func() bool {
		_, ok := <-lines
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.get(t, "/events?sid=ghost")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "session_not_found", body["error"])
}
