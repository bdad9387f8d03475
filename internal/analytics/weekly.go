package analytics

import (
	"sort"
	"time"

	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// WeeksShown is how many of the most recent weeks Weekly keeps.
const WeeksShown = 12

// WeekBucket tallies cases per topic area for one Sunday-started week.
type WeekBucket struct {
	WeekStart time.Time      `json:"weekStart"`
	Label     string         `json:"label"`
	Counts    map[string]int `json:"counts"`
	Total     int            `json:"total"`
}

// Weekly buckets cases into calendar weeks by their parsed date and counts
// them per classified topic area. Topic areas that match no category are
// counted under set.Unclassified. Cases with unparseable dates are skipped.
func Weekly(cases []*model.Case, set *heuristics.Set, dates filter.DateParser) []WeekBucket {
	if set == nil {
		set = heuristics.Default()
	}
	buckets := make(map[time.Time]*WeekBucket)
	for _, c := range cases {
		if c == nil {
			continue
		}
		d, ok := dates.Parse(c.Date)
		if !ok {
			continue
		}
		start := filter.WeekStart(d)
		b, ok := buckets[start]
		if !ok {
			b = &WeekBucket{
				WeekStart: start,
				Label:     start.Format("2006-01-02"),
				Counts:    make(map[string]int),
			}
			buckets[start] = b
		}
		topic, ok := set.ClassifyTopic(c.TopicArea)
		if !ok {
			topic = set.Unclassified
		}
		b.Counts[topic]++
		b.Total++
	}

	out := make([]WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart.Before(out[j].WeekStart) })
	if len(out) > WeeksShown {
		out = out[len(out)-WeeksShown:]
	}
	return out
}
