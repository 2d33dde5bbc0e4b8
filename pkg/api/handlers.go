package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"cassette/pkg/config"
	"cassette/pkg/recorder"
)

// Admin serves the recordings admin endpoints
type Admin struct {
	engine  *recorder.Engine
	auth    *TokenAuth
	prefix  string
	started time.Time
	logger  *zap.Logger
}

// NewAdmin creates the admin handlers for engine
func NewAdmin(engine *recorder.Engine, cfg config.AdminConfig, logger *zap.Logger) *Admin {
	return &Admin{
		engine:  engine,
		auth:    NewTokenAuth(cfg.JWTSecret, cfg.JWTIssuer, logger),
		prefix:  cfg.Prefix,
		started: time.Now(),
		logger:  logger,
	}
}

// Register adds the admin routes to router. Without a signing secret the
// read-only routes are open and deleting recordings is refused.
func (a *Admin) Register(router *Router) {
	deleteHandler := a.auth.Require(a.DeleteRecordingHandler())
	if !a.auth.Enabled() {
		deleteHandler = forbiddenHandler("deleting recordings requires admin.jwt_secret")
		a.logger.Warn("Admin authentication disabled, recording deletion refused",
			zap.String("prefix", a.prefix))
	}

	router.Handle("GET", a.prefix+"/health", HealthCheckHandler())
	router.Handle("GET", a.prefix+"/status", a.auth.Require(a.StatusHandler()))
	router.Handle("GET", a.prefix+"/recordings", a.auth.Require(a.ListRecordingsHandler()))
	router.Handle("GET", a.prefix+"/recordings/{name}", a.auth.Require(a.GetRecordingHandler()))
	router.Handle("DELETE", a.prefix+"/recordings/{name}", deleteHandler)

	a.logger.Info("Admin endpoints registered",
		zap.String("prefix", a.prefix),
		zap.Bool("auth", a.auth.Enabled()))
}

// HealthCheckHandler provides a simple health check endpoint
func HealthCheckHandler() HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"service":   "cassette",
			"timestamp": ctx.Time().Unix(),
		})
		return nil
	}
}

// StatusHandler reports the mode and the record, replay and storage stats
func (a *Admin) StatusHandler() HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"mode":     a.engine.Mode(),
			"uptime":   time.Since(a.started).Round(time.Second).String(),
			"recorder": a.engine.Recorder().Stats(),
			"replayer": a.engine.Replayer().Stats(),
			"storage":  a.engine.Store().Stats(),
		})
		return nil
	}
}

// ListRecordingsHandler lists every readable recording
func (a *Admin) ListRecordingsHandler() HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		infos, err := a.engine.Store().List()
		if err != nil {
			return fmt.Errorf("failed to list recordings: %w", err)
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"recordings": infos,
			"total":      len(infos),
		})
		return nil
	}
}

// GetRecordingHandler returns one recording
func (a *Admin) GetRecordingHandler() HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		name, _ := ctx.UserValue("name").(string)
		it, err := a.engine.Store().Load(name)
		if err != nil {
			return a.storeError(ctx, name, err)
		}
		writeJSON(ctx, fasthttp.StatusOK, it)
		return nil
	}
}

// DeleteRecordingHandler removes one recording
func (a *Admin) DeleteRecordingHandler() HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		name, _ := ctx.UserValue("name").(string)
		if err := a.engine.Store().Delete(name); err != nil {
			return a.storeError(ctx, name, err)
		}

		a.logger.Info("Recording deleted",
			zap.String("name", name),
			zap.Any("subject", ctx.UserValue(SubjectKey)))

		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return nil
	}
}

func forbiddenHandler(message string) HandlerFunc {
	return func(ctx *fasthttp.RequestCtx) error {
		writeJSON(ctx, fasthttp.StatusForbidden, map[string]string{
			"error":   "Forbidden",
			"message": message,
		})
		return nil
	}
}

// storeError maps store errors to responses. Unknown errors go back to the
// router as 500s.
func (a *Admin) storeError(ctx *fasthttp.RequestCtx, name string, err error) error {
	switch {
	case errors.Is(err, recorder.ErrNotFound):
		writeJSON(ctx, fasthttp.StatusNotFound, map[string]string{
			"error":   "Not Found",
			"message": fmt.Sprintf("recording %q not found", name),
		})
		return nil
	case errors.Is(err, recorder.ErrInvalidName):
		writeJSON(ctx, fasthttp.StatusBadRequest, map[string]string{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return nil
	case errors.Is(err, recorder.ErrMalformed):
		writeJSON(ctx, fasthttp.StatusUnprocessableEntity, map[string]string{
			"error":   "Unprocessable Entity",
			"message": err.Error(),
		})
		return nil
	default:
		return err
	}
}
