// Package filter implements the regex content-filtering gate that runs
// before clipboard entries are persisted.
package filter

import (
	"regexp"

	"go.uber.org/zap"
)

// ContentFilter holds the compiled ignore patterns. It is immutable after
// Compile, so concurrent use from the watcher loop needs no locking.
type ContentFilter struct {
	compiled []*regexp.Regexp
}

// Compile builds a ContentFilter from the configured patterns. Patterns that
// fail to compile are logged and skipped; a bad pattern never prevents
// startup.
func Compile(patterns []string, logger *zap.Logger) *ContentFilter {
	f := &ContentFilter{compiled: make([]*regexp.Regexp, 0, len(patterns))}

	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			logger.Warn("skipping invalid filter pattern",
				zap.String("pattern", p),
				zap.Error(err))
			continue
		}
		f.compiled = append(f.compiled, re)
	}

	return f
}

// ShouldFilter reports whether content matches any compiled pattern.
// Matching is substring search, not full-match. An empty pattern set filters
// nothing.
func (f *ContentFilter) ShouldFilter(content string) bool {
	for _, re := range f.compiled {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// PatternCount returns how many patterns compiled successfully.
func (f *ContentFilter) PatternCount() int {
	return len(f.compiled)
}
