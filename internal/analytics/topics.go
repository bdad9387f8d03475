package analytics

import (
	"sort"
	"strings"

	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// Summary table categories.
const (
	CategoryPatrols          = "Patrols"
	CategoryOperations       = "Operations"
	CategoryDetainees        = "Detainees"
	CategoryVehiclesRetained = "Vehicles Retained"
)

// SummaryCategories lists the row groups of the topic summary table in display order.
var SummaryCategories = []string{CategoryPatrols, CategoryOperations, CategoryDetainees, CategoryVehiclesRetained}

// SummaryRow is one category and topic pair with a value per region.
// Cells are aligned with SummaryTable.Regions.
type SummaryRow struct {
	Category string `json:"category"`
	Topic    string `json:"topic"`
	Cells    []int  `json:"cells"`
	Total    int    `json:"total"`
}

// SummaryTable is the category x topic x region cross-tabulation.
type SummaryTable struct {
	Categories []string     `json:"categories"`
	Topics     []string     `json:"topics"`
	Regions    []string     `json:"regions"`
	Rows       []SummaryRow `json:"rows"`
}

// Cell returns the value for one category, topic and region, 0 when absent.
func (t SummaryTable) Cell(category, topic, region string) int {
	col := -1
	for i, r := range t.Regions {
		if r == region {
			col = i
			break
		}
	}
	if col < 0 {
		return 0
	}
	for _, row := range t.Rows {
		if row.Category == category && row.Topic == topic {
			return row.Cells[col]
		}
	}
	return 0
}

// TopicSummary cross-tabulates cases whose topic area classifies into one of
// set's categories. Patrols and operations are case counts; detainees and
// vehicles are summed. Cases without a region are reported under UnknownLabel.
func TopicSummary(cases []*model.Case, set *heuristics.Set) SummaryTable {
	if set == nil {
		set = heuristics.Default()
	}
	topics := set.TopicNames()

	regions := regionColumns(cases)
	regionCol := make(map[string]int, len(regions))
	for i, r := range regions {
		regionCol[heuristics.Fold(r)] = i
	}

	rows := make([]SummaryRow, 0, len(SummaryCategories)*len(topics))
	rowIndex := make(map[string]int)
	for _, cat := range SummaryCategories {
		for _, topic := range topics {
			rowIndex[cat+"\x00"+topic] = len(rows)
			rows = append(rows, SummaryRow{Category: cat, Topic: topic, Cells: make([]int, len(regions))})
		}
	}
	add := func(cat, topic string, col, v int) {
		if v == 0 {
			return
		}
		r := &rows[rowIndex[cat+"\x00"+topic]]
		r.Cells[col] += v
		r.Total += v
	}

	for _, c := range cases {
		if c == nil {
			continue
		}
		topic, ok := set.ClassifyTopic(c.TopicArea)
		if !ok {
			continue
		}
		col := regionCol[heuristics.Fold(regionLabel(c.Region))]
		if c.IsPatrol() {
			add(CategoryPatrols, topic, col, 1)
		}
		if c.IsOperation() {
			add(CategoryOperations, topic, col, 1)
		}
		add(CategoryDetainees, topic, col, c.DetaineeCount)
		add(CategoryVehiclesRetained, topic, col, c.VehicleCount)
	}

	return SummaryTable{
		Categories: append([]string(nil), SummaryCategories...),
		Topics:     topics,
		Regions:    regions,
		Rows:       rows,
	}
}

func regionLabel(r string) string {
	r = strings.TrimSpace(r)
	if r == "" {
		return UnknownLabel
	}
	return r
}

// regionColumns returns every distinct region, sorted, first spelling kept.
func regionColumns(cases []*model.Case) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range cases {
		if c == nil {
			continue
		}
		label := regionLabel(c.Region)
		key := heuristics.Fold(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
