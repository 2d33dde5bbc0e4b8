package api

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

// RequestIDKey is the user value holding the request id
const RequestIDKey = "request_id"

// MiddlewareFunc is the type of function for FastHTTP middleware
type MiddlewareFunc func(next fasthttp.RequestHandler) fasthttp.RequestHandler

func passthrough(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return next
}

// Stack represents a stack of middleware
type Stack struct {
	middlewares []MiddlewareFunc
	mu          sync.RWMutex
}

// NewStack creates a new middleware stack with optional initial middlewares
func NewStack(middlewares ...MiddlewareFunc) *Stack {
	stack := &Stack{
		middlewares: make([]MiddlewareFunc, len(middlewares)),
	}
	copy(stack.middlewares, middlewares)
	return stack
}

// Use adds a middleware to the stack
func (s *Stack) Use(middleware MiddlewareFunc) *Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware)
	return s
}

// Len returns the number of middlewares in the stack
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.middlewares)
}

// Apply wraps handler so that the first middleware added runs outermost
func (s *Stack) Apply(handler fasthttp.RequestHandler) fasthttp.RequestHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := handler
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		result = s.middlewares[i](result)
	}
	return result
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if id, ok := ctx.UserValue(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestID middleware assigns each request an id, reusing an incoming
// X-Request-ID header when present
func RequestID(enabled bool) MiddlewareFunc {
	if !enabled {
		return passthrough
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			id := string(ctx.Request.Header.Peek("X-Request-ID"))
			if id == "" {
				id = uuid.New().String()
			}

			ctx.SetUserValue(RequestIDKey, id)
			ctx.Response.Header.Set("X-Request-ID", id)

			next(ctx)
		}
	}
}

// Logger middleware logs one line per request, at a level chosen by status
func Logger(logger *zap.Logger) MiddlewareFunc {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			next(ctx)

			status := ctx.Response.StatusCode()
			fields := []zap.Field{
				zap.String("method", string(ctx.Method())),
				zap.String("path", string(ctx.Path())),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", ctx.RemoteAddr().String()),
				zap.Int("request_size", len(ctx.Request.Body())),
				zap.Int("response_size", len(ctx.Response.Body())),
			}
			if id := requestID(ctx); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			switch {
			case status >= 500:
				logger.Error("HTTP request", fields...)
			case status >= 400:
				logger.Warn("HTTP request", fields...)
			default:
				logger.Info("HTTP request", fields...)
			}
		}
	}
}

// Recovery middleware turns a panic in a handler into a 500 response
func Recovery(logger *zap.Logger, recoveryCfg config.RecoveryConfig) MiddlewareFunc {
	if !recoveryCfg.Enabled {
		return passthrough
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				id := requestID(ctx)
				fields := []zap.Field{
					zap.Any("panic", r),
					zap.String("method", string(ctx.Method())),
					zap.String("path", string(ctx.Path())),
				}
				if id != "" {
					fields = append(fields, zap.String("request_id", id))
				}
				if recoveryCfg.LogStack {
					stack := make([]byte, 4096)
					stack = stack[:runtime.Stack(stack, false)]
					fields = append(fields, zap.ByteString("stack_trace", stack))
				}
				logger.Error("Panic recovered", fields...)

				ctx.ResetBody()
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetContentType("application/json")
				ctx.SetBodyString(fmt.Sprintf(`{"error":"Internal server error","request_id":%q}`, id))
			}()

			next(ctx)
		}
	}
}

// CORS middleware handles Cross-Origin Resource Sharing
func CORS(corsCfg config.CORSConfig) MiddlewareFunc {
	if !corsCfg.Enabled {
		return passthrough
	}

	methods := strings.Join(corsCfg.AllowMethods, ", ")
	headers := strings.Join(corsCfg.AllowHeaders, ", ")

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			origin := string(ctx.Request.Header.Peek("Origin"))

			allowed := ""
			for _, o := range corsCfg.AllowOrigins {
				if o == "*" || o == origin {
					allowed = o
					break
				}
			}

			if allowed != "" {
				if allowed == "*" {
					ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
				} else {
					ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
				}
				if methods != "" {
					ctx.Response.Header.Set("Access-Control-Allow-Methods", methods)
				}
				if headers != "" {
					ctx.Response.Header.Set("Access-Control-Allow-Headers", headers)
				}
				if corsCfg.AllowCredentials {
					ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
				}
				if corsCfg.MaxAge > 0 {
					ctx.Response.Header.Set("Access-Control-Max-Age", strconv.Itoa(corsCfg.MaxAge))
				}
			}

			// Preflight never reaches the cassette or the upstream.
			if ctx.IsOptions() && len(ctx.Request.Header.Peek("Access-Control-Request-Method")) > 0 {
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			next(ctx)
		}
	}
}

// Timeout middleware answers 408 when a handler runs longer than the
// configured duration
func Timeout(timeoutCfg config.TimeoutConfig) MiddlewareFunc {
	if !timeoutCfg.Enabled || timeoutCfg.Duration <= 0 {
		return passthrough
	}

	msg := fmt.Sprintf(`{"error":"Request timeout","timeout":%q}`, timeoutCfg.Duration.String())
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeoutCfg.Duration, msg, fasthttp.StatusRequestTimeout)
	}
}

// RateLimit middleware applies one token bucket to all requests
func RateLimit(rlCfg config.RateLimitConfig, logger *zap.Logger) MiddlewareFunc {
	if !rlCfg.Enabled || rlCfg.RequestsPerSecond <= 0 {
		return passthrough
	}

	burst := rlCfg.Burst
	if burst <= 0 {
		burst = int(rlCfg.RequestsPerSecond)
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rlCfg.RequestsPerSecond), burst)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if !limiter.Allow() {
				ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
				ctx.SetContentType("application/json")
				ctx.Response.Header.Set("Retry-After", "1")
				ctx.SetBodyString(`{"error":"Rate limit exceeded"}`)

				logger.Debug("Rate limit exceeded",
					zap.String("method", string(ctx.Method())),
					zap.String("path", string(ctx.Path())))
				return
			}
			next(ctx)
		}
	}
}

// Cassette binds the record/replay engine to fasthttp. In replay mode a hit
// answers the request without calling next. In record mode next runs first
// and the finished response is saved before it is sent. metrics may be nil.
func Cassette(engine *recorder.Engine, metrics *Metrics, logger *zap.Logger) MiddlewareFunc {
	if engine == nil {
		return passthrough
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			req := NewRequest(ctx)
			resp := NewResponse(ctx)

			outcome := engine.Handle(req, resp, func() recorder.Response {
				next(ctx)
				return resp
			})

			if metrics != nil {
				metrics.ObserveOutcome(engine.Mode(), outcome)
			}

			logger.Debug("Cassette",
				zap.String("mode", string(engine.Mode())),
				zap.String("outcome", string(outcome)),
				zap.String("method", req.Method()),
				zap.String("url", req.URL()),
				zap.String("request_id", requestID(ctx)))
		}
	}
}
