package recorder

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cassette/pkg/config"
)

// Recorder captures eligible request/response pairs into a Store
type Recorder struct {
	store     Store
	filters   *FilterEngine
	templater *Templater
	matching  config.MatchingConfig
	logger    *zap.Logger

	mu    sync.Mutex
	stats RecordingStats
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, filters *FilterEngine, templater *Templater, matching config.MatchingConfig, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:     store,
		filters:   filters,
		templater: templater,
		matching:  matching,
		logger:    logger,
		stats: RecordingStats{
			StartTime: time.Now(),
		},
	}
}

// Eligible reports whether req would be recorded
func (r *Recorder) Eligible(req Request) bool {
	return r.filters.IsEligible(req)
}

// Record saves the finished exchange when req is eligible and returns the
// saved interaction. Ineligible requests return (nil, nil). Any status code
// is recorded, error statuses included.
func (r *Recorder) Record(req Request, resp Response) (*Interaction, error) {
	r.mu.Lock()
	r.stats.TotalRequests++
	r.mu.Unlock()

	if !r.filters.IsEligible(req) {
		r.mu.Lock()
		r.stats.FilteredRequests++
		r.mu.Unlock()
		return nil, nil
	}

	it := r.BuildInteraction(req, resp)
	filename := r.templater.Render(req)

	if err := r.store.Save(filename, it); err != nil {
		r.mu.Lock()
		r.stats.Errors++
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to save recording: %w", err)
	}

	r.mu.Lock()
	r.stats.RecordedRequests++
	r.stats.LastRecording = time.Now()
	r.mu.Unlock()

	r.logger.Debug("Request recorded",
		zap.String("file", filename+RecordingExt),
		zap.String("method", it.Request.Method),
		zap.String("url", it.Request.URL),
		zap.Int("status", it.Response.Status),
		zap.String("request_key", it.RequestKey))

	return it, nil
}

// BuildInteraction assembles the record for an exchange without saving it.
// Headers are kept only when header matching is on, the request body only
// when body matching is on.
func (r *Recorder) BuildInteraction(req Request, resp Response) *Interaction {
	request := RecordedRequest{
		Method:  req.Method(),
		URL:     req.URL(),
		Path:    req.Path(),
		Query:   firstValues(req.Query()),
		Headers: map[string]string{},
	}
	response := RecordedResponse{
		Status:  resp.StatusCode(),
		Headers: map[string]string{},
		Body:    string(resp.Body()),
	}

	if r.matching.IncludeHeaders {
		request.Headers = headerMap(req.Headers())
		response.Headers = headerMap(resp.Headers())
	}

	if r.matching.IncludeBody {
		if body := req.Body(); len(body) > 0 {
			request.Body = decodeBody(body)
		}
	}

	return &Interaction{
		Timestamp:  r.templater.now().UTC().Format(TimestampLayout),
		Request:    request,
		Response:   response,
		RequestKey: DeriveKey(req, r.matching),
	}
}

// Stats returns a copy of the recording statistics
func (r *Recorder) Stats() RecordingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// firstValues keeps the first value of each query parameter
func firstValues(params []QueryParam) map[string]string {
	values := make(map[string]string, len(params))
	for _, p := range params {
		if _, ok := values[p.Key]; !ok {
			values[p.Key] = p.Value
		}
	}
	return values
}

// Headers that identify one exchange rather than the resource. They are
// never recorded and never replayed.
var perRequestHeaders = map[string]bool{
	"x-request-id": true,
}

func isPerRequestHeader(name string) bool {
	return perRequestHeaders[strings.ToLower(name)]
}

func headerMap(headers []Header) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		if isPerRequestHeader(h.Name) {
			continue
		}
		if _, ok := m[h.Name]; !ok {
			m[h.Name] = h.Value
		}
	}
	return m
}

// decodeBody returns the JSON value of body, or the raw text when it is not
// JSON
func decodeBody(body []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return string(body)
	}
	return v
}
