package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// ChartKind names a chart that can be rendered from a case list.
type ChartKind string

const (
	ChartRegions       ChartKind = "regions"
	ChartProvinces     ChartKind = "provinces"
	ChartSeizures      ChartKind = "seizures"
	ChartNationalities ChartKind = "nationalities"
	ChartVehicles      ChartKind = "vehicles"
	ChartWeekly        ChartKind = "weekly"
)

// ChartKinds lists every supported kind.
var ChartKinds = []ChartKind{ChartRegions, ChartProvinces, ChartSeizures, ChartNationalities, ChartVehicles, ChartWeekly}

// ParseChartKind validates a kind name.
func ParseChartKind(s string) (ChartKind, error) {
	k := ChartKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ChartKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown chart %q", s)
}

// Series is a labelled bar series.
type Series struct {
	Title  string
	Labels []string
	Values []float64
}

// ChartSeries derives the series for kind from cases.
func ChartSeries(kind ChartKind, cases []*model.Case, set *heuristics.Set, dates filter.DateParser) (Series, error) {
	var s Series
	switch kind {
	case ChartRegions, ChartProvinces:
		rows := analytics.ByRegion(cases)
		s.Title = "Casos por región"
		if kind == ChartProvinces {
			rows = analytics.ByProvince(cases)
			s.Title = "Casos por provincia"
		}
		for _, r := range rows {
			s.Labels = append(s.Labels, r.Name)
			s.Values = append(s.Values, float64(r.Total))
		}
	case ChartSeizures:
		s.Title = "Incautaciones por tipo"
		for _, r := range analytics.SeizureTypes(cases, set) {
			s.Labels = append(s.Labels, r.Type)
			s.Values = append(s.Values, r.Quantity)
		}
	case ChartNationalities:
		s.Title = "Detenidos por nacionalidad"
		for _, r := range analytics.Nationalities(cases) {
			s.Labels = append(s.Labels, r.Nationality)
			s.Values = append(s.Values, float64(r.Count))
		}
	case ChartVehicles:
		s.Title = "Vehículos retenidos por tipo"
		for _, r := range analytics.VehicleTypes(cases) {
			s.Labels = append(s.Labels, r.Type)
			s.Values = append(s.Values, float64(r.Count))
		}
	case ChartWeekly:
		s.Title = "Casos por semana"
		for _, b := range analytics.Weekly(cases, set, dates) {
			s.Labels = append(s.Labels, b.Label)
			s.Values = append(s.Values, float64(b.Total))
		}
	default:
		return s, fmt.Errorf("unknown chart %q", kind)
	}
	return s, nil
}

const (
	barWidth   = 48
	barSpacing = 24
	minWidth   = 800
)

// RenderBarChart writes a PNG bar chart. An empty series renders a single
// "Sin datos" placeholder bar.
func RenderBarChart(w io.Writer, title string, labels []string, values []float64) error {
	if len(labels) != len(values) {
		return fmt.Errorf("chart %q has %d labels and %d values", title, len(labels), len(values))
	}
	bars := make([]chart.Value, 0, len(values))
	top := 0.0
	for i, v := range values {
		bars = append(bars, chart.Value{Label: labels[i], Value: v})
		if v > top {
			top = v
		}
	}
	if len(bars) == 0 {
		bars = append(bars, chart.Value{Label: "Sin datos", Value: 0})
	}
	if top <= 0 {
		top = 1
	}

	width := len(bars)*(barWidth+barSpacing) + 120
	if width < minWidth {
		width = minWidth
	}
	graph := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		Width:      width,
		Height:     480,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
		},
		Bars: bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart %q: %w", title, err)
	}
	return nil
}

// RenderChart derives and renders kind in one step.
func RenderChart(w io.Writer, kind ChartKind, cases []*model.Case, set *heuristics.Set, dates filter.DateParser) error {
	s, err := ChartSeries(kind, cases, set, dates)
	if err != nil {
		return err
	}
	return RenderBarChart(w, s.Title, s.Labels, s.Values)
}
