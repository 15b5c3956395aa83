// Package timestamp turns the free-text stamps found on news and comment
// pages into absolute times.
//
// Normalize is total: it never returns an error. Text that matches no known
// shape comes back as an Unknown result carrying the reference time, and the
// caller decides whether such a value may enter a time window.
package timestamp

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// DisplayLayout is the layout used when writing comment stamps to output.
const DisplayLayout = "06/01/02 15:04"

// Kind tells how a Result was obtained.
type Kind int

const (
	// Unknown means no strategy matched; Result.Time holds the reference
	// time.
	Unknown Kind = iota
	// Relative means the text was an offset such as "5分前".
	Relative
	// Absolute means the text matched one of the absolute layouts.
	Absolute
)

func (k Kind) String() string {
	switch k {
	case Relative:
		return "relative"
	case Absolute:
		return "absolute"
	default:
		return "unknown"
	}
}

// Result is the outcome of Normalize.
type Result struct {
	Time time.Time
	Kind Kind
}

// Known reports whether the text was understood.
func (r Result) Known() bool {
	return r.Kind != Unknown
}

type layout struct {
	format  string
	hasYear bool
}

// absoluteLayouts are tried in order; the first successful parse wins.
// More precise layouts come first so "2024/05/10 12:00:30" is never read by
// a minute-precision layout.
var absoluteLayouts = []layout{
	{"2006年1月2日 15時04分", true},
	{"2006年1月2日 15:04", true},
	{"2006/1/2 15:04:05", true},
	{"2006/1/2 15:04", true},
	{"06/1/2 15:04", true},
	{"2006-1-2 15:04:05", true},
	{"2006-1-2 15:04", true},
	{"2006年1月2日", true},
	{"2006/1/2", true},
	{"2006-1-2", true},
	{"1月2日 15:04", false},
	{"1/2 15:04", false},
	{"1月2日", false},
	{"1/2", false},
}

var (
	japaneseOffset = regexp.MustCompile(`^(.+?)\s*(秒|分|時間|日)前$`)
	englishOffset  = regexp.MustCompile(`(?i)^(\S+)\s+(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?)\s+ago$`)
	weekdaySuffix  = regexp.MustCompile(`\s*[(（][月火水木金土日][)）]`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// Normalize converts text into an absolute time relative to now. The
// location of now is used for absolute layouts.
func Normalize(text string, now time.Time) Result {
	s := clean(text)
	if s == "" {
		return Result{Time: now, Kind: Unknown}
	}

	if t, ok := parseRelative(s, now); ok {
		return Result{Time: t, Kind: Relative}
	}

	if t, ok := parseAbsolute(s, now); ok {
		return Result{Time: t, Kind: Absolute}
	}

	return Result{Time: now, Kind: Unknown}
}

// Display formats t with DisplayLayout.
func Display(t time.Time) string {
	return t.Format(DisplayLayout)
}

// clean folds full-width characters, drops weekday markers such as "(金)"
// and collapses whitespace.
func clean(text string) string {
	s := width.Fold.String(text)
	s = weekdaySuffix.ReplaceAllString(s, "")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func parseRelative(s string, now time.Time) (time.Time, bool) {
	if m := japaneseOffset.FindStringSubmatch(s); m != nil {
		unit, ok := japaneseUnit(m[2])
		if !ok {
			return time.Time{}, false
		}
		return offset(m[1], unit, now)
	}

	if m := englishOffset.FindStringSubmatch(s); m != nil {
		unit, ok := englishUnit(m[2])
		if !ok {
			return time.Time{}, false
		}
		return offset(m[1], unit, now)
	}

	return time.Time{}, false
}

// maxOffsetDays bounds day offsets so calendar arithmetic cannot overflow.
const maxOffsetDays = 1_000_000_000

const day = 24 * time.Hour

// offset subtracts count units from now. Counts whose offset does not fit
// are rejected rather than wrapped.
func offset(count string, unit time.Duration, now time.Time) (time.Time, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n < 0 {
		return time.Time{}, false
	}

	if unit == day {
		if n > maxOffsetDays {
			return time.Time{}, false
		}
		return now.AddDate(0, 0, -n), true
	}

	if int64(n) > math.MaxInt64/int64(unit) {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * unit), true
}

func japaneseUnit(suffix string) (time.Duration, bool) {
	switch suffix {
	case "秒":
		return time.Second, true
	case "分":
		return time.Minute, true
	case "時間":
		return time.Hour, true
	case "日":
		return day, true
	}
	return 0, false
}

func englishUnit(word string) (time.Duration, bool) {
	w := strings.ToLower(word)
	switch {
	case strings.HasPrefix(w, "sec"):
		return time.Second, true
	case strings.HasPrefix(w, "min"):
		return time.Minute, true
	case strings.HasPrefix(w, "h"):
		return time.Hour, true
	case strings.HasPrefix(w, "day"):
		return day, true
	}
	return 0, false
}

func parseAbsolute(s string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	for _, l := range absoluteLayouts {
		t, err := time.ParseInLocation(l.format, s, loc)
		if err != nil {
			continue
		}
		if !l.hasYear {
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		}
		return t, true
	}
	return time.Time{}, false
}
