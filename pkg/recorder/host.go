package recorder

import (
	"bytes"
	"strings"
)

// QueryParam is one query-string parameter in arrival order
type QueryParam struct {
	Key   string
	Value string
}

// Header is one header line. Names are expected in lower case.
type Header struct {
	Name  string
	Value string
}

// Request is the read-only view of an inbound request the engine needs
// from its host server
type Request interface {
	Method() string
	// URL returns the path together with the raw query string
	URL() string
	Path() string
	Query() []QueryParam
	Headers() []Header
	Body() []byte
}

// Response is a response the downstream handler has finished producing
type Response interface {
	StatusCode() int
	Headers() []Header
	Body() []byte
}

// ResponseWriter is the part of the host response that replay drives
type ResponseWriter interface {
	SetStatusCode(code int)
	SetHeader(name, value string)
	SetBody(body []byte)
}

// CaptureWriter decorates a ResponseWriter for hosts that emit a response
// through calls rather than buffering it. Every call is forwarded unchanged
// and a copy is kept, so the writer can be handed to Recorder.Record as the
// finished Response.
type CaptureWriter struct {
	next    ResponseWriter
	status  int
	headers []Header
	body    bytes.Buffer
	onBody  func([]byte)
}

// NewCaptureWriter wraps next. onBody, if not nil, fires after each body write
// with the bytes written.
func NewCaptureWriter(next ResponseWriter, onBody func([]byte)) *CaptureWriter {
	return &CaptureWriter{
		next:   next,
		status: 200,
		onBody: onBody,
	}
}

// SetStatusCode forwards and records the status
func (w *CaptureWriter) SetStatusCode(code int) {
	w.status = code
	w.next.SetStatusCode(code)
}

// SetHeader forwards and records a header, replacing an earlier value of the
// same name
func (w *CaptureWriter) SetHeader(name, value string) {
	lower := strings.ToLower(name)
	replaced := false
	for i := range w.headers {
		if w.headers[i].Name == lower {
			w.headers[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		w.headers = append(w.headers, Header{Name: lower, Value: value})
	}
	w.next.SetHeader(name, value)
}

// SetBody forwards the body and keeps a copy
func (w *CaptureWriter) SetBody(body []byte) {
	w.body.Reset()
	w.body.Write(body)
	w.next.SetBody(body)
	if w.onBody != nil {
		w.onBody(body)
	}
}

// StatusCode returns the last status set, 200 if none
func (w *CaptureWriter) StatusCode() int { return w.status }

// Headers returns the headers set so far
func (w *CaptureWriter) Headers() []Header { return w.headers }

// Body returns the captured body
func (w *CaptureWriter) Body() []byte { return w.body.Bytes() }
