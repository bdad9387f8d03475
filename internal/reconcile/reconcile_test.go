package reconcile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senpa-rd/casewatch/internal/model"
)

func sampleTables() []model.Table {
	return []model.Table{
		{
			Name: "notas_informativas",
			Data: [][]string{
				{"id", "numerocaso", "fecha", "hora", "provincia", "localidad", "region", "tipoactividad", "areatematica", "procuraduria", "coordenadas"},
				{"1", "C1", "2024-01-05", "08:30", "Santiago", "Jánico", "Norte", "Operativo Forestal", "Recursos Forestales", "Sí", "18.47,-69.89"},
				{"2", "C2", "15/03/2024", "", "Azua", "Padre Las Casas", "Sur", "Patrulla preventiva", "Suelos y Aguas", "", ""},
				{"3", "  ", "2024-02-01", "", "Peravia", "", "Sur", "Operativo", "", "", ""},
			},
		},
		{
			Name: "detenidos",
			Data: [][]string{
				{"numerocaso", "nombre", "nacionalidad"},
				{"C1", "Juan Perez", "Dominicana"},
				{"C1", "Jean Pierre", "Haitiana"},
				{"C1", "", "Dominicana"},
				{"", "Fantasma", "Dominicana"},
			},
		},
		{
			Name: "vehiculos",
			Data: [][]string{
				{"numerocaso", "tipo", "placa"},
				{"C2", "Camión", "L123456"},
				{"C2", "Motocicleta", ""},
			},
		},
		{
			Name: "incautaciones",
			Data: [][]string{
				{"numerocaso", "tipo", "cantidad"},
				{"C1", "Machetes", "2"},
				{"C1", "Motosierra", ""},
			},
		},
		{
			Name: "notificados",
			Data: [][]string{
				{"numerocaso", "cantidad"},
				{"C2", "3"},
				{"C2", "4"},
			},
		},
	}
}

func TestReconcileScenario(t *testing.T) {
	tables := []model.Table{
		{
			Name: "notas_informativas",
			Data: [][]string{
				{"numerocaso", "fecha", "tipoactividad"},
				{"C1", "2024-01-05", "Operativo Forestal"},
			},
		},
		{
			Name: "detenidos",
			Data: [][]string{
				{"numerocaso", "nombre", "nacionalidad"},
				{"C1", "Juan Perez", "Dominicana"},
			},
		},
	}

	cases := New(nil, nil).Reconcile(tables)

	require.Len(t, cases, 1)
	c := cases["C1"]
	require.NotNil(t, c)
	assert.Contains(t, c.ActivityType, "Operativo")
	assert.Equal(t, "2024-01-05", c.Date)
	assert.Equal(t, 1, c.DetaineeCount)
	assert.Equal(t, []model.DetaineeDetail{{Name: "Juan Perez", Nationality: "Dominicana"}}, c.DetaineeDetails)
}

func TestReconcileAccumulates(t *testing.T) {
	cases := New(nil, nil).Reconcile(sampleTables())
	require.Len(t, cases, 2)

	c1 := cases["C1"]
	assert.Equal(t, "Santiago", c1.Province)
	assert.Equal(t, "Jánico", c1.Locality)
	assert.Equal(t, "Norte", c1.Region)
	assert.Equal(t, "08:30", c1.Time)
	assert.Equal(t, 2, c1.DetaineeCount, "rows with an empty name do not count")
	assert.Equal(t, []string{"2 Machetes", "1 Motosierra"}, c1.Seizures)
	assert.Len(t, c1.SeizureDetails, 2)
	assert.True(t, c1.ProsecutorReferral)
	assert.Equal(t, 0, c1.NotifiedFlag)
	require.NotNil(t, c1.Coordinates)
	assert.Equal(t, model.Coordinates{Lat: 18.47, Lng: -69.89}, *c1.Coordinates)

	c2 := cases["C2"]
	assert.Equal(t, 2, c2.VehicleCount)
	assert.Equal(t, []model.VehicleDetail{{Type: "Camión", Plate: "L123456"}, {Type: "Motocicleta"}}, c2.VehicleDetails)
	assert.Equal(t, 1, c2.NotifiedFlag, "notified is a presence flag, not a sum")
	assert.False(t, c2.ProsecutorReferral)
	assert.Nil(t, c2.Coordinates)
	assert.Empty(t, c2.Seizures)
}

func TestReconcileNeverCreatesEmptyCaseNumbers(t *testing.T) {
	cases := New(nil, nil).Reconcile(sampleTables())
	for number, c := range cases {
		assert.NotEmpty(t, number)
		assert.NotEmpty(t, c.CaseNumber)
		assert.Equal(t, number, c.CaseNumber)
	}
	_, ok := cases[""]
	assert.False(t, ok)
}

func TestReconcileDetaineeCountMatchesDetails(t *testing.T) {
	for _, c := range New(nil, nil).Reconcile(sampleTables()) {
		assert.Equal(t, c.DetaineeCount, len(c.DetaineeDetails), c.CaseNumber)
		assert.Equal(t, c.VehicleCount, len(c.VehicleDetails), c.CaseNumber)
		assert.Equal(t, len(c.Seizures), len(c.SeizureDetails), c.CaseNumber)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	r := New(nil, nil)
	first := r.Reconcile(sampleTables())
	second := r.Reconcile(sampleTables())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reconcile is not idempotent (-first +second):\n%s", diff)
	}
}

func TestReconcileSkipsUnusableTables(t *testing.T) {
	tables := []model.Table{
		{Name: "detenidos", Data: nil},
		{Name: "detenidos", Data: [][]string{{"numerocaso", "nombre"}}},
		{Name: "catalogo", Data: [][]string{{"codigo", "nombre"}, {"X1", "Algo"}}},
	}
	cases := New(nil, nil).Reconcile(tables)
	assert.Empty(t, cases)
}

func TestReconcileGenericFieldsComeFromFirstSight(t *testing.T) {
	tables := []model.Table{
		{Name: "notas_informativas", Data: [][]string{
			{"numerocaso", "provincia", "fecha"},
			{"C9", "Azua", ""},
		}},
		{Name: "notas_complementarias", Data: [][]string{
			{"numerocaso", "provincia", "fecha", "notificados", "procuraduria"},
			{"C9", "Barahona", "2024-05-01", "si", "no"},
			{"C9", "", "", "", "sí"},
			{"C9", "", "", "", "no"},
		}},
	}
	c := New(nil, nil).Reconcile(tables)["C9"]
	require.NotNil(t, c)
	assert.Equal(t, "Azua", c.Province, "later tables never overwrite")
	assert.Empty(t, c.Date, "later tables do not fill fields left empty on first sight")
	assert.Equal(t, 1, c.NotifiedFlag)
	assert.True(t, c.ProsecutorReferral, "prosecutor referral never resets to false")
}

func TestReconcileShortRowsDegradeGracefully(t *testing.T) {
	tables := []model.Table{
		{Name: "incautaciones", Data: [][]string{
			{"numerocaso", "tipo", "cantidad"},
			{"C5"},
			{"C5", "Sacos de carbón"},
		}},
	}
	c := New(nil, nil).Reconcile(tables)["C5"]
	require.NotNil(t, c)
	assert.Equal(t, []string{"1 Sacos de carbón"}, c.Seizures)
}

func TestReconcileSeparateCoordinateColumns(t *testing.T) {
	tables := []model.Table{
		{Name: "ubicaciones", Data: [][]string{
			{"numerocaso", "latitud", "longitud"},
			{"C7", "0", "-70.1"},
			{"C7", "19.1", "-70.2"},
			{"C7", "19.5", "-70.9"},
		}},
	}
	c := New(nil, nil).Reconcile(tables)["C7"]
	require.NotNil(t, c)
	require.NotNil(t, c.Coordinates)
	assert.Equal(t, model.Coordinates{Lat: 19.1, Lng: -70.2}, *c.Coordinates, "first valid pair is kept")
}

func TestParseCoordinates(t *testing.T) {
	got, ok := ParseCoordinates("18.47,-69.89")
	require.True(t, ok)
	assert.Equal(t, model.Coordinates{Lat: 18.47, Lng: -69.89}, got)

	for _, bad := range []string{"91,0", "91,-69.89", "18.4,-181", "0,0", "abc,1", "18.47", "", "1,2,3"} {
		_, ok := ParseCoordinates(bad)
		assert.False(t, ok, bad)
	}
}

func TestReconcileRejectsOutOfRangeCoordinates(t *testing.T) {
	tables := []model.Table{
		{Name: "notas_informativas", Data: [][]string{
			{"numerocaso", "coordenadas"},
			{"C8", "91,0"},
		}},
	}
	c := New(nil, nil).Reconcile(tables)["C8"]
	require.NotNil(t, c)
	assert.Nil(t, c.Coordinates)
}

func TestMergeIntoExisting(t *testing.T) {
	r := New(nil, nil)
	cases := r.Reconcile(sampleTables()[:1])
	require.Equal(t, 0, cases["C1"].DetaineeCount)

	r.Merge(cases, sampleTables()[1:2])
	assert.Equal(t, 2, cases["C1"].DetaineeCount)
}
