package api

import (
	"strings"

	"github.com/valyala/fasthttp"

	"cassette/pkg/recorder"
)

// Request exposes a fasthttp request to the cassette engine. Header names are
// lower-cased.
type Request struct {
	ctx *fasthttp.RequestCtx
}

// NewRequest wraps the request of ctx
func NewRequest(ctx *fasthttp.RequestCtx) *Request {
	return &Request{ctx: ctx}
}

func (r *Request) Method() string { return string(r.ctx.Method()) }
func (r *Request) URL() string    { return string(r.ctx.RequestURI()) }
func (r *Request) Path() string   { return string(r.ctx.Path()) }
func (r *Request) Body() []byte   { return r.ctx.PostBody() }

// Query returns the query parameters in the order they arrived
func (r *Request) Query() []recorder.QueryParam {
	var params []recorder.QueryParam
	r.ctx.QueryArgs().VisitAll(func(key, value []byte) {
		params = append(params, recorder.QueryParam{Key: string(key), Value: string(value)})
	})
	return params
}

// Headers returns every request header
func (r *Request) Headers() []recorder.Header {
	var headers []recorder.Header
	r.ctx.Request.Header.VisitAll(func(key, value []byte) {
		headers = append(headers, recorder.Header{Name: strings.ToLower(string(key)), Value: string(value)})
	})
	return headers
}

// Response reads and writes the fasthttp response of a request. fasthttp
// buffers the whole response until the handler returns, so once the
// downstream handler is done the response can be read back as produced.
type Response struct {
	ctx *fasthttp.RequestCtx
}

// NewResponse wraps the response of ctx
func NewResponse(ctx *fasthttp.RequestCtx) *Response {
	return &Response{ctx: ctx}
}

func (r *Response) StatusCode() int { return r.ctx.Response.StatusCode() }
func (r *Response) Body() []byte    { return r.ctx.Response.Body() }

// Headers returns every response header
func (r *Response) Headers() []recorder.Header {
	var headers []recorder.Header
	r.ctx.Response.Header.VisitAll(func(key, value []byte) {
		headers = append(headers, recorder.Header{Name: strings.ToLower(string(key)), Value: string(value)})
	})
	return headers
}

func (r *Response) SetStatusCode(code int) { r.ctx.SetStatusCode(code) }
func (r *Response) SetBody(body []byte)    { r.ctx.SetBody(body) }

// SetHeader sets a response header. Framing headers are left to fasthttp,
// which derives them from the body.
func (r *Response) SetHeader(name, value string) {
	switch strings.ToLower(name) {
	case "content-length", "transfer-encoding", "connection":
		return
	}
	r.ctx.Response.Header.Set(name, value)
}

var (
	_ recorder.Request        = (*Request)(nil)
	_ recorder.Response       = (*Response)(nil)
	_ recorder.ResponseWriter = (*Response)(nil)
)
