package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

func newCase(num, date, region, province, locality, activity, topic string) *model.Case {
	c := model.NewCase(num)
	c.Date = date
	c.Region = region
	c.Province = province
	c.Locality = locality
	c.ActivityType = activity
	c.TopicArea = topic
	return c
}

func fixture() []*model.Case {
	c1 := newCase("C1", "2024-01-05", "Norte", "Santiago", "Jánico", "Operativo Forestal", "Tala de árboles")
	c1.DetaineeCount = 2
	c1.DetaineeDetails = []model.DetaineeDetail{{Name: "A", Nationality: "Dominicana"}, {Name: "B", Nationality: "Haitiana"}}
	c1.Seizures = []string{"2 Machetes", "1 Motosierra"}
	c1.ProsecutorReferral = true

	c2 := newCase("C2", "15/03/2024", "Sur", "Azua", "Padre Las Casas", "Patrulla preventiva", "Extracción de arena del río")
	c2.VehicleCount = 3
	c2.VehicleDetails = []model.VehicleDetail{{Type: "Camión"}, {Type: "camión"}, {Type: "Motocicleta"}}
	c2.NotifiedFlag = 1
	c2.Seizures = []string{"1 machetes", "OP-2024-15: Sacos de carbón"}

	c3 := newCase("C3", "2024-03-16", " norte ", "Santiago", "jánico ", "Charla educativa", "Sin tema")
	c3.DetaineeCount = 1
	c3.DetaineeDetails = []model.DetaineeDetail{{Name: "C", Nationality: "dominicana"}}

	c4 := newCase("C4", "bad", "", "", "", "Operativo", "Playa")
	return []*model.Case{c1, c2, c3, c4}
}

func TestSummarize(t *testing.T) {
	m := Summarize(fixture())

	assert.Equal(t, Metrics{
		Operations:          2,
		Patrols:             1,
		TotalCases:          4,
		Detainees:           3,
		Vehicles:            3,
		Seizures:            4,
		IntervenedAreas:     2,
		Notified:            1,
		ProsecutorReferrals: 1,
		Regions:             2,
	}, m)
	assert.LessOrEqual(t, m.Operations+m.Patrols, m.TotalCases)
}

func TestCalculateMetricsAppliesFilter(t *testing.T) {
	m := CalculateMetrics(fixture(), &model.FilterSpec{Regions: []string{"norte"}})
	assert.Equal(t, 2, m.TotalCases)
	assert.Equal(t, 3, m.Detainees)
	assert.Equal(t, 1, m.Regions)

	assert.Equal(t, Summarize(fixture()), CalculateMetrics(fixture(), nil))
}

func TestCalculateMetricsEmpty(t *testing.T) {
	assert.Equal(t, Metrics{}, CalculateMetrics(nil, nil))
}

func TestByRegion(t *testing.T) {
	got := ByRegion(fixture())
	require.Len(t, got, 3)

	assert.Equal(t, AreaBreakdown{Name: "Norte", Operations: 1, Detainees: 3, Total: 4}, got[0])
	assert.Equal(t, AreaBreakdown{Name: "Sur", Patrols: 1, Vehicles: 3, Total: 4}, got[1])
	assert.Equal(t, AreaBreakdown{Name: UnknownLabel, Operations: 1, Total: 1}, got[2])
}

func TestByProvinceSortedByTotal(t *testing.T) {
	got := ByProvince(fixture())
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Total, got[i].Total)
	}
	assert.Equal(t, "Azua", got[0].Name, "equal totals are ordered by name")
	assert.Equal(t, 4, got[1].Total)
}

func TestSplitSeizure(t *testing.T) {
	q, typ := SplitSeizure("2 Machetes")
	assert.Equal(t, 2.0, q)
	assert.Equal(t, "Machetes", typ)

	q, typ = SplitSeizure("1,5 Quintales de carbón")
	assert.Equal(t, 1.5, q)
	assert.Equal(t, "Quintales de carbón", typ)

	q, typ = SplitSeizure("Motosierra")
	assert.Equal(t, 1.0, q)
	assert.Equal(t, "Motosierra", typ)
}

func TestSeizureTypesMergesQuantities(t *testing.T) {
	c := model.NewCase("X")
	c.Seizures = []string{"2 Machetes", "1 Machetes"}

	got := SeizureTypes([]*model.Case{c}, nil)
	assert.Equal(t, []SeizureTypeCount{{Type: "Machetes", Quantity: 3}}, got)
}

func TestSeizureTypesCleansAndCapitalizes(t *testing.T) {
	got := SeizureTypes(fixture(), heuristics.Default())
	assert.Equal(t, []SeizureTypeCount{
		{Type: "Machetes", Quantity: 3},
		{Type: "Motosierra", Quantity: 1},
		{Type: "Sacos de carbón", Quantity: 1},
	}, got)
}

func TestSeizureTypesTopTen(t *testing.T) {
	c := model.NewCase("X")
	for i := 1; i <= 15; i++ {
		c.Seizures = append(c.Seizures, fmt.Sprintf("%d Tipo %02d", i, i))
	}
	got := SeizureTypes([]*model.Case{c}, nil)
	require.Len(t, got, MaxSeizureTypes)
	assert.Equal(t, "Tipo 15", got[0].Type)
	assert.Equal(t, 15.0, got[0].Quantity)
	assert.Equal(t, "Tipo 06", got[9].Type)
}

func TestNationalities(t *testing.T) {
	got := Nationalities(fixture())
	assert.Equal(t, []NationalityCount{
		{Nationality: "Dominicana", Count: 2},
		{Nationality: "Haitiana", Count: 1},
	}, got)
}

func TestVehicleTypes(t *testing.T) {
	got := VehicleTypes(fixture())
	assert.Equal(t, []VehicleTypeCount{
		{Type: "Camión", Count: 2, Percentage: 66.7},
		{Type: "Motocicleta", Count: 1, Percentage: 33.3},
	}, got)
	assert.Empty(t, VehicleTypes(nil))
}

func TestWeekly(t *testing.T) {
	dates := filter.NewDateParser(time.UTC)
	got := Weekly(fixture(), nil, dates)

	require.Len(t, got, 2, "C2 and C3 share a week, C4 has no usable date")
	assert.Equal(t, "2023-12-31", got[0].Label)
	assert.Equal(t, map[string]int{"Recursos Forestales": 1}, got[0].Counts)

	assert.Equal(t, "2024-03-10", got[1].Label)
	assert.Equal(t, 2, got[1].Total)
	assert.Equal(t, map[string]int{"Suelos y Aguas": 1, "Otros": 1}, got[1].Counts)
}

func TestWeeklyKeepsLastTwelveWeeks(t *testing.T) {
	dates := filter.NewDateParser(time.UTC)
	start := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)
	var cases []*model.Case
	for i := 0; i < 20; i++ {
		d := start.AddDate(0, 0, 7*i+2)
		cases = append(cases, newCase(fmt.Sprint(i), d.Format("2006-01-02"), "", "", "", "", "bosque"))
	}

	got := Weekly(cases, nil, dates)
	require.Len(t, got, WeeksShown)
	assert.Equal(t, start.AddDate(0, 0, 7*8), got[0].WeekStart)
	assert.Equal(t, start.AddDate(0, 0, 7*19), got[WeeksShown-1].WeekStart)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].WeekStart.Before(got[i].WeekStart))
	}
}

func TestTopicSummary(t *testing.T) {
	table := TopicSummary(fixture(), nil)

	assert.Equal(t, SummaryCategories, table.Categories)
	assert.Len(t, table.Topics, 5)
	assert.Equal(t, []string{"Norte", "Sin especificar", "Sur"}, table.Regions)
	assert.Len(t, table.Rows, 4*5)

	assert.Equal(t, 1, table.Cell(CategoryOperations, "Recursos Forestales", "Norte"))
	assert.Equal(t, 2, table.Cell(CategoryDetainees, "Recursos Forestales", "Norte"))
	assert.Equal(t, 1, table.Cell(CategoryPatrols, "Suelos y Aguas", "Sur"))
	assert.Equal(t, 3, table.Cell(CategoryVehiclesRetained, "Suelos y Aguas", "Sur"))
	assert.Equal(t, 1, table.Cell(CategoryOperations, "Costeros y Marinos", UnknownLabel))

	// C3's topic area classifies nowhere, so its detainee is not counted.
	total := 0
	for _, row := range table.Rows {
		if row.Category == CategoryDetainees {
			total += row.Total
		}
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, table.Cell(CategoryPatrols, "Suelos y Aguas", "Atlántida"))
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Árbol", Capitalize("árbol"))
	assert.Equal(t, "", Capitalize(""))
	assert.Equal(t, "X", Capitalize("x"))
}
