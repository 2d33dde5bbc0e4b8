package recorder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([a-zA-Z]+)\}`)
	nonAlphanumeric    = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// Templater renders recording filenames from a pattern with the
// placeholders {method}, {url}, {date}, {timestamp} and {counter}.
// Unknown placeholders are kept verbatim.
type Templater struct {
	pattern string
	counter Counter
	now     func() time.Time
}

// NewTemplater creates a templater. A nil counter gets a MemoryCounter and a
// nil clock uses time.Now.
func NewTemplater(pattern string, counter Counter, now func() time.Time) *Templater {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if now == nil {
		now = time.Now
	}
	return &Templater{
		pattern: pattern,
		counter: counter,
		now:     now,
	}
}

// Pattern returns the template
func (t *Templater) Pattern() string {
	return t.pattern
}

// Render returns the filename, without extension, for req
func (t *Templater) Render(req Request) string {
	return t.RenderFor(req.Method(), req.Path())
}

// RenderFor renders the pattern for a method and path. The counter advances
// on every call.
func (t *Templater) RenderFor(method, path string) string {
	n := t.counter.Next()
	now := t.now()

	return placeholderPattern.ReplaceAllStringFunc(t.pattern, func(match string) string {
		switch match[1 : len(match)-1] {
		case "method":
			return method
		case "url":
			return SanitizePath(path)
		case "date":
			return now.UTC().Format("2006-01-02")
		case "timestamp":
			return strconv.FormatInt(now.UnixMilli(), 10)
		case "counter":
			return fmt.Sprintf("%04d", n)
		default:
			return match
		}
	})
}

// SanitizePath replaces every run of characters outside [a-zA-Z0-9] with a
// single underscore and trims underscores from both ends
func SanitizePath(path string) string {
	return strings.Trim(nonAlphanumeric.ReplaceAllString(path, "_"), "_")
}
