package recorder

import (
	"time"
)

// TimestampLayout is the ISO-8601 layout of Interaction.Timestamp
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Interaction is one recorded request/response pair. Its JSON form is the
// on-disk format of a recording file.
type Interaction struct {
	Timestamp  string           `json:"timestamp"`
	Request    RecordedRequest  `json:"request"`
	Response   RecordedResponse `json:"response"`
	RequestKey string           `json:"requestKey"`
}

// RecordedRequest captures the parts of a request kept in a recording
type RecordedRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Path    string            `json:"path"`
	Query   map[string]string `json:"query"`
	Headers map[string]string `json:"headers"`
	// Body is the decoded JSON value, or the raw text when the body is not
	// JSON. Present only when bodies take part in matching.
	Body interface{} `json:"body,omitempty"`
}

// RecordedResponse captures the parts of a response kept in a recording
type RecordedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// RecordedAt parses the interaction timestamp
func (i *Interaction) RecordedAt() (time.Time, error) {
	return time.Parse(TimestampLayout, i.Timestamp)
}

// RecordingInfo describes one file in the recordings directory
type RecordingInfo struct {
	Filename   string    `json:"filename"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Status     int       `json:"status"`
	RequestKey string    `json:"requestKey"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// StorageStats provides statistics about storage usage
type StorageStats struct {
	TotalRecordings int64  `json:"total_recordings"`
	TotalSize       int64  `json:"total_size_bytes"`
	Unreadable      int64  `json:"unreadable"`
	Directory       string `json:"directory"`
}

// RecordingStats tracks recording statistics
type RecordingStats struct {
	TotalRequests    int64     `json:"total_requests"`
	RecordedRequests int64     `json:"recorded_requests"`
	FilteredRequests int64     `json:"filtered_requests"`
	Errors           int64     `json:"errors"`
	StartTime        time.Time `json:"start_time"`
	LastRecording    time.Time `json:"last_recording"`
}

// ReplayStats tracks replay statistics
type ReplayStats struct {
	TotalRequests    int64     `json:"total_requests"`
	Hits             int64     `json:"hits"`
	Misses           int64     `json:"misses"`
	FilteredRequests int64     `json:"filtered_requests"`
	Errors           int64     `json:"errors"`
	StartTime        time.Time `json:"start_time"`
	LastHit          time.Time `json:"last_hit"`
}
