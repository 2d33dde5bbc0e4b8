package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Router dispatches a fixed set of routes and hands every other request to a
// fallback handler
type Router struct {
	routes   map[string]map[string]HandlerFunc
	fallback fasthttp.RequestHandler
	logger   *zap.Logger
}

// HandlerFunc represents a route handler function
type HandlerFunc func(ctx *fasthttp.RequestCtx) error

// NewRouter creates a router. Requests matching no route go to fallback.
func NewRouter(fallback fasthttp.RequestHandler, logger *zap.Logger) (*Router, error) {
	if fallback == nil {
		return nil, fmt.Errorf("fallback handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Router{
		routes:   make(map[string]map[string]HandlerFunc),
		fallback: fallback,
		logger:   logger,
	}, nil
}

// Handle registers a route. Path segments written as {name} match any single
// segment, which is then available as ctx.UserValue(name).
func (r *Router) Handle(method, path string, handler HandlerFunc) {
	if r.routes[method] == nil {
		r.routes[method] = make(map[string]HandlerFunc)
	}
	r.routes[method][path] = handler

	r.logger.Debug("Route registered",
		zap.String("method", method),
		zap.String("path", path))
}

// Routes returns the number of registered routes
func (r *Router) Routes() int {
	total := 0
	for _, methodRoutes := range r.routes {
		total += len(methodRoutes)
	}
	return total
}

// Handler is the main FastHTTP handler
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())

	handler, params, found := r.findRoute(method, path)
	if !found {
		r.fallback(ctx)
		return
	}

	for name, value := range params {
		ctx.SetUserValue(name, value)
	}

	if err := handler(ctx); err != nil {
		r.handleError(ctx, err)
	}
}

// findRoute finds a matching route for the given method and path
func (r *Router) findRoute(method, path string) (HandlerFunc, map[string]string, bool) {
	methodRoutes, exists := r.routes[method]
	if !exists {
		return nil, nil, false
	}

	if handler, exists := methodRoutes[path]; exists {
		return handler, nil, true
	}

	for routePath, handler := range methodRoutes {
		if params := matchPath(routePath, path); params != nil {
			return handler, params, true
		}
	}

	return nil, nil, false
}

// matchPath matches a route pattern against a path and returns its parameters
func matchPath(pattern, path string) map[string]string {
	patternParts := strings.Split(strings.Trim(pattern, "/"), "/")
	pathParts := strings.Split(strings.Trim(path, "/"), "/")

	if len(patternParts) != len(pathParts) {
		return nil
	}

	params := make(map[string]string)
	for i, part := range patternParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			if pathParts[i] == "" {
				return nil
			}
			params[strings.Trim(part, "{}")] = pathParts[i]
		} else if part != pathParts[i] {
			return nil
		}
	}

	return params
}

// handleError handles error responses
func (r *Router) handleError(ctx *fasthttp.RequestCtx, err error) {
	writeJSON(ctx, fasthttp.StatusInternalServerError, map[string]interface{}{
		"error":   "Internal Server Error",
		"message": err.Error(),
	})

	r.logger.Error("Handler error",
		zap.Error(err),
		zap.String("method", string(ctx.Method())),
		zap.String("path", string(ctx.Path())))
}

// writeJSON writes v as the JSON response body
func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"failed to encode response"}`)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
