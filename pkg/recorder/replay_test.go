package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cassette/pkg/config"
)

type replayFixture struct {
	store    *FileStore
	recorder *Recorder
	replayer *Replayer
}

func newReplayFixture(t *testing.T, pattern string, matching config.MatchingConfig) *replayFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store, err := NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)
	filters, err := NewFilterEngine(config.FiltersConfig{
		Methods:     []string{"GET", "POST"},
		URLPatterns: []string{"/api/*"},
	})
	require.NoError(t, err)

	return &replayFixture{
		store:    store,
		recorder: NewRecorder(store, filters, NewTemplater(pattern, nil, nil), matching, logger),
		replayer: NewReplayer(store, filters, NewTemplater(pattern, nil, nil), matching, logger),
	}
}

func TestReplayer_RecordThenReplay(t *testing.T) {
	matching := config.MatchingConfig{IncludeQuery: true, IncludeHeaders: true}
	f := newReplayFixture(t, "{method}_{url}_{timestamp}", matching)

	req := newRequest("GET", "/api/users?page=1").withHeader("accept", "application/json")
	_, err := f.recorder.Record(req, &fakeResponse{
		status: 206,
		headers: []Header{
			{Name: "content-type", Value: "application/vnd.api+json"},
			{Name: "x-total", Value: "42"},
		},
		body: []byte(`{"page":1,"users":[{"id":1}]}`),
	})
	require.NoError(t, err)

	w := newWriter()
	hit, err := f.replayer.Replay(newRequest("GET", "/api/users?page=1").withHeader("accept", "application/json"), w)
	require.NoError(t, err)
	require.True(t, hit)

	assert.Equal(t, 206, w.status)
	assert.Equal(t, "application/vnd.api+json", w.headers["content-type"])
	assert.Equal(t, "42", w.headers["x-total"])
	assert.Equal(t, `{"page":1,"users":[{"id":1}]}`, string(w.body))

	stats := f.replayer.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.False(t, stats.LastHit.IsZero())
}

func TestReplayer_ContentTypeFromBody(t *testing.T) {
	f := newReplayFixture(t, "{method}_{url}_{timestamp}", config.MatchingConfig{IncludeQuery: true})

	_, err := f.recorder.Record(newRequest("GET", "/api/json"), &fakeResponse{status: 200, body: []byte(`{"ok":true}`)})
	require.NoError(t, err)
	_, err = f.recorder.Record(newRequest("GET", "/api/text"), &fakeResponse{status: 200, body: []byte("hello")})
	require.NoError(t, err)

	w := newWriter()
	hit, err := f.replayer.Replay(newRequest("GET", "/api/json"), w)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, ContentTypeJSON, w.headers["content-type"])
	assert.Equal(t, `{"ok":true}`, string(w.body))

	w = newWriter()
	hit, err = f.replayer.Replay(newRequest("GET", "/api/text"), w)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, ContentTypeText, w.headers["content-type"])
	assert.Equal(t, "hello", string(w.body))
}

func TestReplayer_MissWritesNothing(t *testing.T) {
	f := newReplayFixture(t, "{method}_{url}_{timestamp}", config.MatchingConfig{IncludeQuery: true})

	_, err := f.recorder.Record(newRequest("GET", "/api/users?page=1"), &fakeResponse{status: 200, body: []byte("[]")})
	require.NoError(t, err)

	for _, req := range []*fakeRequest{
		newRequest("GET", "/api/users?page=2"),
		newRequest("POST", "/api/users?page=1"),
		newRequest("GET", "/outside"),
	} {
		w := newWriter()
		hit, err := f.replayer.Replay(req, w)
		require.NoError(t, err)
		assert.False(t, hit, req.URL())
		assert.Zero(t, w.writes, req.URL())
	}

	stats := f.replayer.Stats()
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.FilteredRequests)
}

func TestReplayer_FallbackFilename(t *testing.T) {
	// a pattern without time or counter renders the same name on replay
	f := newReplayFixture(t, "{method}_{url}", config.MatchingConfig{})

	manual := sampleInteraction("hand-edited-key")
	require.NoError(t, f.store.Save("GET_api_profile", manual))

	w := newWriter()
	hit, err := f.replayer.Replay(newRequest("GET", "/api/profile"), w)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, manual.Response.Body, string(w.body))
}

func TestReplayer_Lookup(t *testing.T) {
	f := newReplayFixture(t, "{method}_{url}_{counter}", config.MatchingConfig{})

	_, found, err := f.replayer.Lookup(newRequest("GET", "/api/none"))
	require.NoError(t, err)
	assert.False(t, found)

	_, err = f.recorder.Record(newRequest("GET", "/api/some"), &fakeResponse{status: 200})
	require.NoError(t, err)

	it, found, err := f.replayer.Lookup(newRequest("GET", "/api/some"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "get:/api/some", it.RequestKey)
}

func TestWriteInteraction_EmptyBody(t *testing.T) {
	w := newWriter()
	WriteInteraction(&Interaction{Response: RecordedResponse{Status: 204}}, w)

	assert.Equal(t, 204, w.status)
	assert.Equal(t, ContentTypeText, w.headers["content-type"])
	assert.Empty(t, w.body)
}

func TestWriteInteraction_KeepsLiveRequestID(t *testing.T) {
	w := newWriter()
	w.SetHeader("X-Request-ID", "live-42")

	WriteInteraction(&Interaction{Response: RecordedResponse{
		Status:  200,
		Headers: map[string]string{"x-request-id": "recorded-1", "x-upstream": "v1"},
		Body:    `{"ok":true}`,
	}}, w)

	assert.Equal(t, "live-42", w.headers["x-request-id"])
	assert.Equal(t, "v1", w.headers["x-upstream"])
	assert.Equal(t, ContentTypeJSON, w.headers["content-type"])
}
