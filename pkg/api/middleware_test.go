package api

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

// Test helpers
func createTestRequestCtx(method, uri string, body []byte) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	var req fasthttp.Request
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if body != nil {
		req.SetBody(body)
	}
	ctx.Init(&req, nil, nil)
	return &ctx
}

func createTestLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func createTestConfig(t *testing.T, mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Mode = mode
	cfg.RecordingsDir = filepath.Join(t.TempDir(), "recordings")
	cfg.NamingPattern = "{method}_{url}_{counter}"
	return cfg
}

// Test handler that can simulate different behaviors
type testHandler struct {
	statusCode  int
	response    []byte
	headers     map[string]string
	calls       int
	shouldPanic bool
}

func (h *testHandler) handle(ctx *fasthttp.RequestCtx) {
	h.calls++
	if h.shouldPanic {
		panic("test panic")
	}
	for k, v := range h.headers {
		ctx.Response.Header.Set(k, v)
	}
	ctx.SetStatusCode(h.statusCode)
	ctx.SetBody(h.response)
}

// serveInMemory runs handler on an in-memory listener and returns a client
// bound to it
func serveInMemory(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })

	return &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) { return ln.Dial() },
	}
}

func TestStack_Apply_Order(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name+">")
				next(ctx)
				order = append(order, "<"+name)
			}
		}
	}

	stack := NewStack(mark("a"))
	stack.Use(mark("b")).Use(mark("c"))
	assert.Equal(t, 3, stack.Len())

	handler := stack.Apply(func(ctx *fasthttp.RequestCtx) { order = append(order, "handler") })
	handler(createTestRequestCtx("GET", "/", nil))

	assert.Equal(t, []string{"a>", "b>", "c>", "handler", "<c", "<b", "<a"}, order)
}

func TestStack_Apply_EmptyStack(t *testing.T) {
	h := &testHandler{statusCode: 200, response: []byte("ok")}
	ctx := createTestRequestCtx("GET", "/", nil)
	NewStack().Apply(h.handle)(ctx)

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, "ok", string(ctx.Response.Body()))
}

func TestRequestID(t *testing.T) {
	t.Run("generates uuid", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("GET", "/", nil)
		RequestID(true)(h.handle)(ctx)

		id := string(ctx.Response.Header.Peek("X-Request-ID"))
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, ctx.UserValue(RequestIDKey))
	})

	t.Run("reuses incoming id", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("GET", "/", nil)
		ctx.Request.Header.Set("X-Request-ID", "abc-123")
		RequestID(true)(h.handle)(ctx)

		assert.Equal(t, "abc-123", string(ctx.Response.Header.Peek("X-Request-ID")))
	})

	t.Run("disabled", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("GET", "/", nil)
		RequestID(false)(h.handle)(ctx)

		assert.Empty(t, ctx.Response.Header.Peek("X-Request-ID"))
		assert.Nil(t, ctx.UserValue(RequestIDKey))
	})
}

func TestLogger(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{200, zapcore.InfoLevel},
		{404, zapcore.WarnLevel},
		{502, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(fasthttp.StatusMessage(tt.status), func(t *testing.T) {
			logger, logs := createTestLogger()
			h := &testHandler{statusCode: tt.status}
			ctx := createTestRequestCtx("GET", "/api/users", nil)
			ctx.SetUserValue(RequestIDKey, "req-1")

			Logger(logger)(h.handle)(ctx)

			entries := logs.FilterMessage("HTTP request").All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)

			fields := entries[0].ContextMap()
			assert.Equal(t, "GET", fields["method"])
			assert.Equal(t, "/api/users", fields["path"])
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "req-1", fields["request_id"])
		})
	}
}

func TestRecovery(t *testing.T) {
	t.Run("panic becomes 500", func(t *testing.T) {
		logger, logs := createTestLogger()
		h := &testHandler{shouldPanic: true}
		ctx := createTestRequestCtx("GET", "/boom", nil)
		ctx.SetUserValue(RequestIDKey, "req-9")

		Recovery(logger, config.RecoveryConfig{Enabled: true, LogStack: true})(h.handle)(ctx)

		assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
		var body map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
		assert.Equal(t, "req-9", body["request_id"])

		entries := logs.FilterMessage("Panic recovered").All()
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].ContextMap(), "stack_trace")
	})

	t.Run("no panic", func(t *testing.T) {
		logger, _ := createTestLogger()
		h := &testHandler{statusCode: 201, response: []byte("made")}
		ctx := createTestRequestCtx("POST", "/", nil)

		Recovery(logger, config.RecoveryConfig{Enabled: true})(h.handle)(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		assert.Equal(t, "made", string(ctx.Response.Body()))
	})

	t.Run("disabled lets panic through", func(t *testing.T) {
		logger, _ := createTestLogger()
		h := &testHandler{shouldPanic: true}
		handler := Recovery(logger, config.RecoveryConfig{Enabled: false})(h.handle)

		assert.Panics(t, func() { handler(createTestRequestCtx("GET", "/", nil)) })
	})
}

func TestCORS(t *testing.T) {
	corsCfg := config.CORSConfig{
		Enabled:          true,
		AllowOrigins:     []string{"https://app.example.com"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}

	t.Run("allowed origin", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("GET", "/", nil)
		ctx.Request.Header.Set("Origin", "https://app.example.com")

		CORS(corsCfg)(h.handle)(ctx)

		assert.Equal(t, "https://app.example.com", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
		assert.Equal(t, "GET, POST", string(ctx.Response.Header.Peek("Access-Control-Allow-Methods")))
		assert.Equal(t, "true", string(ctx.Response.Header.Peek("Access-Control-Allow-Credentials")))
		assert.Equal(t, "600", string(ctx.Response.Header.Peek("Access-Control-Max-Age")))
		assert.Equal(t, 1, h.calls)
	})

	t.Run("other origin", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("GET", "/", nil)
		ctx.Request.Header.Set("Origin", "https://evil.example.com")

		CORS(corsCfg)(h.handle)(ctx)

		assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
		assert.Equal(t, 1, h.calls)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("OPTIONS", "/api", nil)
		ctx.Request.Header.Set("Origin", "https://app.example.com")
		ctx.Request.Header.Set("Access-Control-Request-Method", "POST")

		CORS(corsCfg)(h.handle)(ctx)

		assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
		assert.Equal(t, 0, h.calls)
	})

	t.Run("plain OPTIONS reaches handler", func(t *testing.T) {
		h := &testHandler{statusCode: 200}
		ctx := createTestRequestCtx("OPTIONS", "/api", nil)

		CORS(corsCfg)(h.handle)(ctx)
		assert.Equal(t, 1, h.calls)
	})
}

func TestRateLimit(t *testing.T) {
	logger, _ := createTestLogger()
	h := &testHandler{statusCode: 200}
	handler := RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}, logger)(h.handle)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		ctx := createTestRequestCtx("GET", "/", nil)
		handler(ctx)
		statuses = append(statuses, ctx.Response.StatusCode())
	}

	assert.Equal(t, []int{200, 200, fasthttp.StatusTooManyRequests}, statuses)
	assert.Equal(t, 2, h.calls)

	disabled := RateLimit(config.RateLimitConfig{Enabled: false}, logger)(h.handle)
	ctx := createTestRequestCtx("GET", "/", nil)
	disabled(ctx)
	assert.Equal(t, 200, ctx.Response.StatusCode())
}

func TestTimeout(t *testing.T) {
	slow := func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		ctx.SetBodyString("late")
	}
	handler := Timeout(config.TimeoutConfig{Enabled: true, Duration: 20 * time.Millisecond})(slow)
	client := serveInMemory(t, handler)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://cassette.test/slow")

	require.NoError(t, client.Do(req, resp))
	assert.Equal(t, fasthttp.StatusRequestTimeout, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "Request timeout")
}

func TestTimeout_Disabled(t *testing.T) {
	h := &testHandler{statusCode: 200, response: []byte("ok")}
	ctx := createTestRequestCtx("GET", "/", nil)
	Timeout(config.TimeoutConfig{Enabled: false, Duration: time.Nanosecond})(h.handle)(ctx)
	assert.Equal(t, "ok", string(ctx.Response.Body()))
}

func TestCassette_RecordThenReplay(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := createTestConfig(t, config.ModeRecord)

	recording, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)

	live := &testHandler{
		statusCode: 200,
		response:   []byte(`{"users":[{"id":1}]}`),
		headers:    map[string]string{"X-Upstream": "live"},
	}
	ctx := createTestRequestCtx("GET", "/api/users?page=1", nil)
	Cassette(recording, nil, logger)(live.handle)(ctx)

	assert.Equal(t, 1, live.calls)
	assert.Equal(t, `{"users":[{"id":1}]}`, string(ctx.Response.Body()))
	assert.FileExists(t, filepath.Join(cfg.RecordingsDir, "GET_api_users_0001.json"))

	cfg.Mode = config.ModeReplay
	replaying, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)
	metrics := NewMetrics()

	offline := &testHandler{statusCode: 503}
	ctx = createTestRequestCtx("GET", "/api/users?page=1", nil)
	Cassette(replaying, metrics, logger)(offline.handle)(ctx)

	assert.Equal(t, 0, offline.calls)
	assert.Equal(t, 200, ctx.Response.StatusCode())
	assert.Equal(t, `{"users":[{"id":1}]}`, string(ctx.Response.Body()))
	assert.Equal(t, recorder.ContentTypeJSON, string(ctx.Response.Header.ContentType()))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("replay", "replayed")))

	// unmatched requests fall through unchanged
	ctx = createTestRequestCtx("GET", "/api/users?page=2", nil)
	Cassette(replaying, metrics, logger)(offline.handle)(ctx)

	assert.Equal(t, 1, offline.calls)
	assert.Equal(t, 503, ctx.Response.StatusCode())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("replay", "miss")))
}

func TestCassette_RecordsHeadersWhenMatched(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := createTestConfig(t, config.ModeRecord)
	cfg.Matching.IncludeHeaders = true

	engine, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)

	live := &testHandler{
		statusCode: 404,
		response:   []byte("missing"),
		headers:    map[string]string{"X-Upstream": "live"},
	}
	ctx := createTestRequestCtx("GET", "/api/users/9", nil)
	ctx.Request.Header.Set("X-Tenant", "acme")
	Cassette(engine, nil, logger)(live.handle)(ctx)

	all, err := engine.Store().ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 404, all[0].Response.Status)
	assert.Equal(t, "live", all[0].Response.Headers["x-upstream"])
	assert.Equal(t, "acme", all[0].Request.Headers["x-tenant"])
	assert.Contains(t, all[0].RequestKey, "|x-tenant:acme")
}

func TestCassette_ReplayKeepsLiveRequestID(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := createTestConfig(t, config.ModeRecord)
	cfg.Matching.IncludeHeaders = true

	recording, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)

	live := &testHandler{statusCode: 200, response: []byte(`{"id":1}`)}
	ctx := createTestRequestCtx("GET", "/api/users/1", nil)
	RequestID(true)(Cassette(recording, nil, logger)(live.handle))(ctx)
	recordedID := string(ctx.Response.Header.Peek("X-Request-ID"))
	require.NotEmpty(t, recordedID)

	all, err := recording.Store().ListAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotContains(t, all[0].Response.Headers, "x-request-id")

	cfg.Mode = config.ModeReplay
	replaying, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)

	offline := &testHandler{statusCode: 503}
	ctx = createTestRequestCtx("GET", "/api/users/1", nil)
	RequestID(true)(Cassette(replaying, nil, logger)(offline.handle))(ctx)

	assert.Equal(t, 0, offline.calls)
	assert.Equal(t, `{"id":1}`, string(ctx.Response.Body()))
	replayedID := string(ctx.Response.Header.Peek("X-Request-ID"))
	assert.Equal(t, ctx.UserValue(RequestIDKey), replayedID)
	assert.NotEqual(t, recordedID, replayedID)
}

func TestCassette_OffMode(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := createTestConfig(t, config.ModeOff)
	engine, err := recorder.NewEngine(cfg, logger)
	require.NoError(t, err)

	h := &testHandler{statusCode: 200, response: []byte("ok")}
	ctx := createTestRequestCtx("GET", "/api/users", nil)
	Cassette(engine, nil, logger)(h.handle)(ctx)

	assert.Equal(t, 1, h.calls)
	all, err := engine.Store().ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInstrument(t *testing.T) {
	metrics := NewMetrics()
	h := &testHandler{statusCode: 201}
	ctx := createTestRequestCtx("POST", "/", nil)

	Instrument(metrics)(h.handle)(ctx)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RequestDuration))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RequestsInFlight))

	// nil metrics is a no-op
	Instrument(nil)(h.handle)(createTestRequestCtx("GET", "/", nil))
	assert.Equal(t, 2, h.calls)
}
