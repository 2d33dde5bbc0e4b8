package recorder

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cassette/pkg/config"
)

// Content types used when a recording carries no content-type header
const (
	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Replayer answers eligible requests from recordings
type Replayer struct {
	store     Store
	filters   *FilterEngine
	templater *Templater
	matching  config.MatchingConfig
	logger    *zap.Logger

	mu    sync.Mutex
	stats ReplayStats
}

// NewReplayer creates a replayer reading from store
func NewReplayer(store Store, filters *FilterEngine, templater *Templater, matching config.MatchingConfig, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{
		store:     store,
		filters:   filters,
		templater: templater,
		matching:  matching,
		logger:    logger,
		stats: ReplayStats{
			StartTime: time.Now(),
		},
	}
}

// Lookup finds the recording for req without writing anything. The second
// result is false for ineligible requests and misses.
func (r *Replayer) Lookup(req Request) (*Interaction, bool, error) {
	if !r.filters.IsEligible(req) {
		return nil, false, nil
	}

	key := DeriveKey(req, r.matching)
	fallback := r.templater.Render(req)

	it, err := r.store.Find(key, fallback)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return it, true, nil
}

// Replay writes the recorded response for req to w and reports whether it
// did. On false nothing was written and the caller should run its handler.
func (r *Replayer) Replay(req Request, w ResponseWriter) (bool, error) {
	r.mu.Lock()
	r.stats.TotalRequests++
	r.mu.Unlock()

	if !r.filters.IsEligible(req) {
		r.mu.Lock()
		r.stats.FilteredRequests++
		r.mu.Unlock()
		return false, nil
	}

	it, found, err := r.Lookup(req)
	if err != nil {
		r.mu.Lock()
		r.stats.Errors++
		r.mu.Unlock()
		return false, err
	}
	if !found {
		r.mu.Lock()
		r.stats.Misses++
		r.mu.Unlock()
		r.logger.Debug("No recording for request",
			zap.String("method", req.Method()),
			zap.String("url", req.URL()))
		return false, nil
	}

	WriteInteraction(it, w)

	r.mu.Lock()
	r.stats.Hits++
	r.stats.LastHit = time.Now()
	r.mu.Unlock()

	r.logger.Debug("Request replayed",
		zap.String("method", req.Method()),
		zap.String("url", req.URL()),
		zap.Int("status", it.Response.Status),
		zap.String("request_key", it.RequestKey))

	return true, nil
}

// WriteInteraction emits a recorded response: status, every recorded header,
// then the body. The body bytes are sent as stored. When no content-type was
// recorded one is chosen by whether the body parses as JSON.
func WriteInteraction(it *Interaction, w ResponseWriter) {
	w.SetStatusCode(it.Response.Status)

	hasContentType := false
	for name, value := range it.Response.Headers {
		if isPerRequestHeader(name) {
			continue
		}
		if strings.EqualFold(name, "content-type") {
			hasContentType = true
		}
		w.SetHeader(name, value)
	}

	body := []byte(it.Response.Body)
	if !hasContentType {
		if json.Valid(body) {
			w.SetHeader("Content-Type", ContentTypeJSON)
		} else {
			w.SetHeader("Content-Type", ContentTypeText)
		}
	}
	w.SetBody(body)
}

// Stats returns a copy of the replay statistics
func (r *Replayer) Stats() ReplayStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
