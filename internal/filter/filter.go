// Package filter applies a FilterSpec to a case list.
package filter

import (
	"strings"
	"time"

	"github.com/senpa-rd/casewatch/internal/model"
)

// Engine evaluates filter specs. The zero value is not usable; use New.
type Engine struct {
	dates DateParser
}

// New returns an engine that interprets dates in loc (time.Local when nil).
func New(loc *time.Location) *Engine {
	return &Engine{dates: NewDateParser(loc)}
}

// Dates exposes the engine's date parser for view builders that bucket by date.
func (e *Engine) Dates() DateParser {
	return e.dates
}

var defaultEngine = New(nil)

// Apply filters cases with the local-time default engine.
func Apply(cases []*model.Case, spec model.FilterSpec) []*model.Case {
	return defaultEngine.Apply(cases, spec)
}

// Apply returns the cases matching every active dimension. The input slice
// and its cases are not modified.
func (e *Engine) Apply(cases []*model.Case, spec model.FilterSpec) []*model.Case {
	out := make([]*model.Case, 0, len(cases))
	m := e.compile(spec)
	for _, c := range cases {
		if c == nil {
			continue
		}
		if m.match(c) {
			out = append(out, c)
		}
	}
	return out
}

// Match reports whether a single case passes spec.
func (e *Engine) Match(c *model.Case, spec model.FilterSpec) bool {
	return e.compile(spec).match(c)
}

// matcher is a FilterSpec with bounds parsed and values normalized once.
type matcher struct {
	dates      DateParser
	dateActive bool
	from, to   time.Time
	hasFrom    bool
	hasTo      bool
	provinces  []string
	regions    []string
	activities []string
	topics     []string
	search     string
}

func (e *Engine) compile(spec model.FilterSpec) matcher {
	m := matcher{
		dates:      e.dates,
		dateActive: spec.HasDateRange(),
		provinces:  normalize(spec.Provinces),
		regions:    normalize(spec.Regions),
		activities: normalize(spec.ActivityTypes),
		topics:     normalize(spec.TopicAreas),
		search:     strings.ToLower(strings.TrimSpace(spec.SearchText)),
	}
	if strings.TrimSpace(spec.DateFrom) != "" {
		m.from, m.hasFrom = e.dates.StartOfDay(spec.DateFrom)
	}
	if strings.TrimSpace(spec.DateTo) != "" {
		m.to, m.hasTo = e.dates.EndOfDay(spec.DateTo)
	}
	return m
}

func (m matcher) match(c *model.Case) bool {
	if m.dateActive {
		d, ok := m.dates.Parse(c.Date)
		if !ok {
			return false
		}
		if m.hasFrom && d.Before(m.from) {
			return false
		}
		if m.hasTo && d.After(m.to) {
			return false
		}
	}
	if !anyContains(c.Province, m.provinces) ||
		!anyContains(c.Region, m.regions) ||
		!anyContains(c.ActivityType, m.activities) ||
		!anyContains(c.TopicArea, m.topics) {
		return false
	}
	if m.search != "" && !strings.Contains(c.SearchText(), m.search) {
		return false
	}
	return true
}

func normalize(values []string) []string {
	var out []string
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// anyContains is true when wanted is empty or any value is a substring of field.
func anyContains(field string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	f := strings.ToLower(field)
	for _, w := range wanted {
		if strings.Contains(f, w) {
			return true
		}
	}
	return false
}
