package recorder

import (
	"fmt"
	"regexp"
	"strings"

	"cassette/pkg/config"
)

// MatchAll is the url pattern that admits every path
const MatchAll = "*"

// FilterEngine decides whether a request is eligible for recording or replay
type FilterEngine struct {
	methods    map[string]struct{}
	includeAll bool
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
}

// NewFilterEngine compiles the configured patterns. A pattern that is not a
// valid expression is reported here rather than on the first request.
func NewFilterEngine(cfg config.FiltersConfig) (*FilterEngine, error) {
	f := &FilterEngine{
		methods: make(map[string]struct{}, len(cfg.Methods)),
	}

	for _, method := range cfg.Methods {
		f.methods[method] = struct{}{}
	}

	for _, pattern := range cfg.URLPatterns {
		if pattern == MatchAll {
			f.includeAll = true
			continue
		}
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
		}
		f.include = append(f.include, re)
	}

	for _, pattern := range cfg.ExcludePatterns {
		re, err := CompilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.exclude = append(f.exclude, re)
	}

	return f, nil
}

// CompilePattern turns a url pattern into an unanchored expression: each *
// matches any sequence of characters and the pattern may match anywhere in
// the path, so "/api" matches both "/api/users" and "/v2/api/x".
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(strings.ReplaceAll(pattern, "*", ".*"))
}

// IsEligible reports whether req passes the method, include and exclude rules
func (f *FilterEngine) IsEligible(req Request) bool {
	return f.Eligible(req.Method(), req.Path())
}

// Eligible applies the rules to a method and path. Method names are compared
// verbatim. Exclusion always overrides inclusion.
func (f *FilterEngine) Eligible(method, path string) bool {
	if _, ok := f.methods[method]; !ok {
		return false
	}

	included := f.includeAll
	if !included {
		for _, re := range f.include {
			if re.MatchString(path) {
				included = true
				break
			}
		}
	}
	if !included {
		return false
	}

	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}

	return true
}
