package analytics

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// AreaBreakdown is one row of the region or province chart.
type AreaBreakdown struct {
	Name       string `json:"name"`
	Operations int    `json:"operations"`
	Patrols    int    `json:"patrols"`
	Detainees  int    `json:"detainees"`
	Vehicles   int    `json:"vehicles"`
	Total      int    `json:"total"`
}

// SeizureTypeCount is the summed quantity of one cleaned seizure type.
type SeizureTypeCount struct {
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
}

// NationalityCount is the number of detainees of one nationality.
type NationalityCount struct {
	Nationality string `json:"nationality"`
	Count       int    `json:"count"`
}

// VehicleTypeCount is the number of retained vehicles of one type.
type VehicleTypeCount struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MaxSeizureTypes caps the seizure-type breakdown.
const MaxSeizureTypes = 10

// ByRegion groups cases by region.
func ByRegion(cases []*model.Case) []AreaBreakdown {
	return breakdown(cases, func(c *model.Case) string { return c.Region })
}

// ByProvince groups cases by province.
func ByProvince(cases []*model.Case) []AreaBreakdown {
	return breakdown(cases, func(c *model.Case) string { return c.Province })
}

func breakdown(cases []*model.Case, key func(*model.Case) string) []AreaBreakdown {
	g := newGrouper[AreaBreakdown]()
	for _, c := range cases {
		if c == nil {
			continue
		}
		row := g.get(key(c), func(label string) AreaBreakdown { return AreaBreakdown{Name: label} })
		if c.IsOperation() {
			row.Operations++
		}
		if c.IsPatrol() {
			row.Patrols++
		}
		row.Detainees += c.DetaineeCount
		row.Vehicles += c.VehicleCount
		row.Total = row.Operations + row.Patrols + row.Detainees + row.Vehicles
	}
	out := g.values()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out
}

var leadingQuantity = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s+(.+)$`)

// SplitSeizure separates "<quantity> <type>" into its parts. Strings without
// a leading number count as one unit.
func SplitSeizure(s string) (float64, string) {
	m := leadingQuantity.FindStringSubmatch(s)
	if m == nil {
		return 1, strings.TrimSpace(s)
	}
	q, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 1, strings.TrimSpace(m[2])
	}
	return q, strings.TrimSpace(m[2])
}

// SeizureTypes cleans each seizure string with set, merges types case-insensitively,
// sums quantities and returns the top MaxSeizureTypes by quantity.
func SeizureTypes(cases []*model.Case, set *heuristics.Set) []SeizureTypeCount {
	if set == nil {
		set = heuristics.Default()
	}
	g := newGrouper[SeizureTypeCount]()
	for _, c := range cases {
		if c == nil {
			continue
		}
		for _, s := range c.Seizures {
			qty, raw := SplitSeizure(s)
			typ := Capitalize(set.CleanSeizureType(raw))
			if typ == "" {
				continue
			}
			row := g.get(typ, func(label string) SeizureTypeCount { return SeizureTypeCount{Type: label} })
			row.Quantity += qty
		}
	}
	out := g.values()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > MaxSeizureTypes {
		out = out[:MaxSeizureTypes]
	}
	return out
}

// Nationalities counts detainee detail records by nationality.
func Nationalities(cases []*model.Case) []NationalityCount {
	g := newGrouper[NationalityCount]()
	for _, c := range cases {
		if c == nil {
			continue
		}
		for _, d := range c.DetaineeDetails {
			row := g.get(d.Nationality, func(label string) NationalityCount { return NationalityCount{Nationality: label} })
			row.Count++
		}
	}
	out := g.values()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Nationality < out[j].Nationality
	})
	return out
}

// VehicleTypes counts vehicle detail records by type with their share of the total.
func VehicleTypes(cases []*model.Case) []VehicleTypeCount {
	g := newGrouper[VehicleTypeCount]()
	total := 0
	for _, c := range cases {
		if c == nil {
			continue
		}
		for _, v := range c.VehicleDetails {
			row := g.get(Capitalize(strings.TrimSpace(v.Type)), func(label string) VehicleTypeCount { return VehicleTypeCount{Type: label} })
			row.Count++
			total++
		}
	}
	out := g.values()
	for i := range out {
		out[i].Percentage = math.Round(float64(out[i].Count)*1000/float64(total)) / 10
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Capitalize upper-cases the first letter of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// grouper keeps insertion order and merges keys case- and accent-insensitively.
// The first label seen for a key is the one reported.
type grouper[T any] struct {
	index map[string]int
	rows  []*T
}

func newGrouper[T any]() *grouper[T] {
	return &grouper[T]{index: make(map[string]int)}
}

func (g *grouper[T]) get(label string, create func(string) T) *T {
	label = strings.TrimSpace(label)
	if label == "" {
		label = UnknownLabel
	}
	key := heuristics.Fold(label)
	if i, ok := g.index[key]; ok {
		return g.rows[i]
	}
	row := create(label)
	g.index[key] = len(g.rows)
	g.rows = append(g.rows, &row)
	return &row
}

func (g *grouper[T]) values() []T {
	out := make([]T, len(g.rows))
	for i, r := range g.rows {
		out[i] = *r
	}
	return out
}
