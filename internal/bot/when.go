package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ErrBadWhen reports an unparseable date/time argument.
var ErrBadWhen = errors.New("unrecognized date format")

// WhenHint is shown to users when their input cannot be parsed.
const WhenHint = "24-12-2024 12:24:36 / 1w5d13h36m"

var absoluteLayouts = []string{
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

// ParseWhen turns a user-supplied schedule expression into an absolute time.
// Two families are accepted: an absolute timestamp (day-first or ISO order)
// and a relative offset like "1w5d13h36m" added to now.
func ParseWhen(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrBadWhen)
	}
	if loc == nil {
		loc = now.Location()
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	d, err := parseOffset(raw)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// maxOffset caps relative offsets; anything further out is a typo, and
// the cap keeps per-unit multiplication well inside the int64 range.
const maxOffset = 100 * 365 * 24 * time.Hour

// parseOffset parses compact offsets built from w/d/h/m/s units, e.g.
// "1w5d13h36m". Units may appear in any order but at most once each.
func parseOffset(raw string) (time.Duration, error) {
	var total time.Duration
	seen := map[byte]bool{}
	i := 0
	for i < len(raw) {
		start := i
		for i < len(raw) && unicode.IsDigit(rune(raw[i])) {
			i++
		}
		if start == i || i == len(raw) {
			return 0, fmt.Errorf("%w: %q", ErrBadWhen, raw)
		}
		var n int64
		for _, c := range raw[start:i] {
			n = n*10 + int64(c-'0')
			if n > int64(maxOffset/time.Second) {
				return 0, fmt.Errorf("%w: value too large in %q", ErrBadWhen, raw)
			}
		}
		unit := raw[i]
		i++
		if seen[unit] {
			return 0, fmt.Errorf("%w: repeated unit %q", ErrBadWhen, string(unit))
		}
		seen[unit] = true
		var unitDur time.Duration
		switch unit {
		case 'w':
			unitDur = 7 * 24 * time.Hour
		case 'd':
			unitDur = 24 * time.Hour
		case 'h':
			unitDur = time.Hour
		case 'm':
			unitDur = time.Minute
		case 's':
			unitDur = time.Second
		default:
			return 0, fmt.Errorf("%w: unknown unit %q", ErrBadWhen, string(unit))
		}
		if n > int64(maxOffset/unitDur) {
			return 0, fmt.Errorf("%w: value too large in %q", ErrBadWhen, raw)
		}
		total += time.Duration(n) * unitDur
		if total > maxOffset {
			return 0, fmt.Errorf("%w: offset too far out in %q", ErrBadWhen, raw)
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: zero offset", ErrBadWhen)
	}
	return total, nil
}
