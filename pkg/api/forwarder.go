package api

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"cassette/pkg/config"
)

// Forwarder is the handler behind the cassette middleware when serving
// standalone: it relays requests to the upstream and copies the answer back
type Forwarder struct {
	client  *fasthttp.Client
	base    string
	host    string
	timeout time.Duration
	logger  *zap.Logger
}

// NewForwarder creates a forwarder. An empty upstream URL is allowed; every
// request then gets a 502.
func NewForwarder(cfg config.UpstreamConfig, logger *zap.Logger) (*Forwarder, error) {
	f := &Forwarder{
		client: &fasthttp.Client{
			ReadTimeout:              cfg.Timeout,
			WriteTimeout:             cfg.Timeout,
			NoDefaultUserAgentHeader: true,
		},
		timeout: cfg.Timeout,
		logger:  logger,
	}

	if cfg.URL == "" {
		return f, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url must be http or https: %q", cfg.URL)
	}

	f.base = strings.TrimSuffix(u.Scheme+"://"+u.Host+u.Path, "/")
	f.host = u.Host
	return f, nil
}

// Handler relays one request
func (f *Forwarder) Handler(ctx *fasthttp.RequestCtx) {
	if f.base == "" {
		writeJSON(ctx, fasthttp.StatusBadGateway, map[string]string{
			"error":   "Bad Gateway",
			"message": "no upstream configured",
		})
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	ctx.Request.CopyTo(req)
	req.SetRequestURI(f.base + string(ctx.RequestURI()))
	req.Header.SetHost(f.host)
	// Recordings store the body as sent, so ask for it uncompressed.
	req.Header.Del(fasthttp.HeaderAcceptEncoding)
	req.Header.Del(fasthttp.HeaderConnection)
	req.Header.Add(fasthttp.HeaderXForwardedFor, ctx.RemoteIP().String())

	var err error
	if f.timeout > 0 {
		err = f.client.DoTimeout(req, resp, f.timeout)
	} else {
		err = f.client.Do(req, resp)
	}
	if err != nil {
		f.logger.Error("Upstream request failed",
			zap.String("method", string(ctx.Method())),
			zap.String("url", f.base+string(ctx.RequestURI())),
			zap.Error(err))
		writeJSON(ctx, fasthttp.StatusBadGateway, map[string]string{
			"error":   "Bad Gateway",
			"message": err.Error(),
		})
		return
	}

	resp.CopyTo(&ctx.Response)
}
