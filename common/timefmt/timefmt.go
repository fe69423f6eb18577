// Package timefmt parses the two duration input families the engine
// accepts (Go duration strings and natural-language relative times) and
// renders durations for human-facing notices.
package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// ErrUnrecognized is returned when a value is neither a Go duration
// string nor a recognizable natural-language relative time.
var ErrUnrecognized = errors.New("timefmt: unrecognized time expression")

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDelay interprets s as a span of time from now. Accepts Go duration
// form ("2m30s", "5h") or natural language ("in 2 hours", "tomorrow").
func ParseDelay(s string, now time.Time) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrUnrecognized
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative duration %q", ErrUnrecognized, s)
		}
		return d, nil
	}
	at, err := ParseFuture(s, now)
	if err != nil {
		return 0, err
	}
	return at.Sub(now), nil
}

// ParseFuture interprets s as a natural-language point in time after now.
func ParseFuture(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	if !covers(s, r.Text) {
		// Trailing words after the time expression mean the value was not
		// purely a time, e.g. "2 hours please".
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognized, s)
	}
	if !r.Time.After(now) {
		return time.Time{}, fmt.Errorf("%w: %q is not in the future", ErrUnrecognized, s)
	}
	return r.Time, nil
}

// Normalize converts a duration setting value to its canonical stored
// form (a Go duration string) plus a display string echoing the input.
func Normalize(s string, now time.Time) (canonical, display string, err error) {
	trimmed := strings.TrimSpace(s)
	if d, perr := time.ParseDuration(trimmed); perr == nil && d >= 0 {
		return d.String(), d.String(), nil
	}
	at, err := ParseFuture(trimmed, now)
	if err != nil {
		return "", "", err
	}
	canonical = at.Sub(now).Round(time.Second).String()
	return canonical, fmt.Sprintf("%s (%s)", trimmed, canonical), nil
}

func covers(input, matched string) bool {
	return strings.EqualFold(strings.TrimSpace(input), strings.TrimSpace(matched))
}

// Human renders a duration the way close notices phrase it: "60 seconds",
// "2 minutes", "1 hour 30 minutes". Spans under two minutes stay in
// seconds so short scheduled closes read literally.
func Human(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d.Round(time.Second).Seconds())
	if secs < 120 {
		return plural(secs, "second")
	}

	days := secs / 86400
	hours := (secs % 86400) / 3600
	mins := (secs % 3600) / 60
	secs = secs % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if mins > 0 {
		parts = append(parts, plural(mins, "minute"))
	}
	if secs > 0 {
		parts = append(parts, plural(secs, "second"))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
