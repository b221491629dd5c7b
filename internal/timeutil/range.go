// Package timeutil parses the relative time range strings accepted by the
// HTTP API ("5m", "2h", "1h30m", ...).
package timeutil

import (
	"strconv"
	"strings"
	"time"
)

// Range is a concrete time interval. ParseRelative always produces a
// forward-looking range (Start = now, End in the future); callers that need
// a backward window invert it themselves.
type Range struct {
	Start time.Time
	End   time.Time
}

// Duration returns the span of the range.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Backward reinterprets the range as the same duration ending at now.
func (r Range) Backward(now time.Time) Range {
	return Range{Start: now.Add(-r.Duration()), End: now}
}

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// ParseRelative parses a relative duration string into a range anchored at
// now. Accepted forms are "<n><s|m|h|d>" with n > 0, and the combined
// "<H>h<M>m" form. Anything else returns ok=false; invalid input is not an
// error, it just means "no range constraint".
func ParseRelative(input string, now time.Time) (Range, bool) {
	input = strings.TrimSpace(input)
	if len(input) < 2 {
		return Range{}, false
	}

	// Combined hour+minute form, e.g. "1h30m".
	if h, m, ok := splitHourMinute(input); ok {
		secs := h*3600 + m*60
		if secs <= 0 {
			return Range{}, false
		}
		return Range{Start: now, End: now.Add(time.Duration(secs) * time.Second)}, true
	}

	unit := input[len(input)-1]
	mult, ok := unitSeconds[unit]
	if !ok {
		return Range{}, false
	}

	n, err := strconv.ParseInt(input[:len(input)-1], 10, 64)
	if err != nil || n <= 0 {
		return Range{}, false
	}

	return Range{Start: now, End: now.Add(time.Duration(n*mult) * time.Second)}, true
}

// splitHourMinute recognizes "<H>h<M>m". The minute part may be 0 but must
// be present; "1h30" and "h30m" are malformed.
func splitHourMinute(input string) (hours, minutes int64, ok bool) {
	hIdx := strings.IndexByte(input, 'h')
	if hIdx <= 0 || !strings.HasSuffix(input, "m") {
		return 0, 0, false
	}

	hours, err := strconv.ParseInt(input[:hIdx], 10, 64)
	if err != nil || hours <= 0 {
		return 0, 0, false
	}

	minPart := input[hIdx+1 : len(input)-1]
	if minPart == "" {
		// "1hm" has no minute digits; plain "1h" is handled by the
		// single-unit path.
		return 0, 0, false
	}
	minutes, err = strconv.ParseInt(minPart, 10, 64)
	if err != nil || minutes < 0 {
		return 0, 0, false
	}

	return hours, minutes, true
}
