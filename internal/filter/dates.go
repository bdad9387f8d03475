package filter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoPrefix = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	dayFirst  = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4})`)
)

// fallbackLayouts are tried after ISO dashes have been turned into slashes.
var fallbackLayouts = []string{
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006/1/2",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

// DateParser parses the free-form date strings found in source tables.
// Every successful parse is normalized to midnight in Location.
type DateParser struct {
	Location *time.Location
}

// NewDateParser returns a parser for loc (time.Local when nil).
func NewDateParser(loc *time.Location) DateParser {
	if loc == nil {
		loc = time.Local
	}
	return DateParser{Location: loc}
}

func (p DateParser) loc() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Parse tries, in order: a YYYY-MM-DD prefix, D/M/YYYY (or D-M-YYYY), then a
// list of generic layouts. The result is the local midnight of that day.
func (p DateParser) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		return p.ymd(m[1], m[2], m[3])
	}
	if m := dayFirst.FindStringSubmatch(s); m != nil {
		return p.ymd(m[3], m[2], m[1])
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return p.midnight(t.In(p.loc())), true
	}
	slashed := strings.ReplaceAll(s, "-", "/")
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, slashed, p.loc()); err == nil {
			return p.midnight(t), true
		}
	}
	return time.Time{}, false
}

func (p DateParser) ymd(ys, ms, ds string) (time.Time, bool) {
	y, err1 := strconv.Atoi(ys)
	m, err2 := strconv.Atoi(ms)
	d, err3 := strconv.Atoi(ds)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, p.loc()), true
}

func (p DateParser) midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc())
}

// ParseDate parses s at local midnight with the default location.
func ParseDate(s string) (time.Time, bool) {
	return NewDateParser(nil).Parse(s)
}

// StartOfDay parses s as an inclusive lower bound.
func (p DateParser) StartOfDay(s string) (time.Time, bool) {
	return p.Parse(s)
}

// EndOfDay parses s as an inclusive upper bound ending at 23:59:59.999.
func (p DateParser) EndOfDay(s string) (time.Time, bool) {
	t, ok := p.Parse(s)
	if !ok {
		return time.Time{}, false
	}
	return t.AddDate(0, 0, 1).Add(-time.Millisecond), true
}

// WeekStart returns the Sunday that starts t's calendar week.
func WeekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}
