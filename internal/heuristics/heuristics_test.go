package heuristics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "region", Fold("  Región "))
	assert.Equal(t, "area tematica", Fold("ÁREA TEMÁTICA"))
	assert.Equal(t, "", Fold("   "))
}

func TestIndexResolvesColumns(t *testing.T) {
	set := Default()
	header := []string{"id", "NumeroCaso", "Fecha", "Provincia", "Región", "TipoActividad", "Área Temática", "Latitud", "Longitud"}

	idx := set.Index(header)

	col, ok := idx.Column(FieldCaseNumber)
	require.True(t, ok)
	assert.Equal(t, "NumeroCaso", col)
	assert.Equal(t, "Región", idx[FieldRegion])
	assert.Equal(t, "TipoActividad", idx[FieldActivityType])
	assert.Equal(t, "Área Temática", idx[FieldTopicArea])
	assert.Equal(t, "Latitud", idx[FieldLatitude])
	assert.Equal(t, "Longitud", idx[FieldLongitude])

	_, ok = idx.Column(FieldName)
	assert.False(t, ok, "no name column in this header")
}

func TestIndexKeywordPriority(t *testing.T) {
	set := Default()
	// "caso_relacionado" also contains "caso" but "numero_caso" is a higher priority keyword.
	idx := set.Index([]string{"caso_relacionado", "numero_caso"})
	assert.Equal(t, "numero_caso", idx[FieldCaseNumber])
}

func TestIndexPrefixKeywords(t *testing.T) {
	set := Default()
	idx := set.Index([]string{"lat", "lon", "relato"})
	assert.Equal(t, "lat", idx[FieldLatitude])
	assert.Equal(t, "lon", idx[FieldLongitude])

	idx = set.Index([]string{"relato"})
	_, ok := idx.Column(FieldLatitude)
	assert.False(t, ok, "prefix keywords must not match inside words")
}

func TestTableKind(t *testing.T) {
	set := Default()
	tests := []struct {
		name string
		want TableKind
		ok   bool
	}{
		{"detenidos", TableDetainees, true},
		{"personas_detenidas", TableDetainees, true},
		{"vehiculos_retenidos", TableVehicles, true},
		{"Vehículos", TableVehicles, true},
		{"incautaciones", TableSeizures, true},
		{"decomisos", TableSeizures, true},
		{"objetos_requisados", TableSeizures, true},
		{"notificados", TableNotified, true},
		{"personas_notificadas", TableNotified, true},
		{"notas_informativas", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := set.TableKind(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTopic(t *testing.T) {
	set := Default()

	got, ok := set.ClassifyTopic("Extracción ilegal de AGUA")
	require.True(t, ok)
	assert.Equal(t, "Suelos y Aguas", got)

	got, ok = set.ClassifyTopic("Tala de árboles")
	require.True(t, ok)
	assert.Equal(t, "Recursos Forestales", got)

	_, ok = set.ClassifyTopic("")
	assert.False(t, ok)
	_, ok = set.ClassifyTopic("otra cosa")
	assert.False(t, ok)
}

func TestCleanSeizureType(t *testing.T) {
	set := Default()
	assert.Equal(t, "Machetes", set.CleanSeizureType("OP-2024-15: Machetes"))
	assert.Equal(t, "sacos de carbón", set.CleanSeizureType("Caso C-77 - sacos de  carbón."))
	assert.Equal(t, "Motosierra", set.CleanSeizureType("#3 Motosierra"))
	assert.Equal(t, "Machetes", set.CleanSeizureType("Machetes"))
}

func TestIsAffirmative(t *testing.T) {
	set := Default()
	for _, v := range []string{"Sí", "si", "X", "true", "1", "Sometido"} {
		assert.True(t, set.IsAffirmative(v), v)
	}
	for _, v := range []string{"", "no", "0", "pendiente"} {
		assert.False(t, set.IsAffirmative(v), v)
	}
}

func TestParseOverlay(t *testing.T) {
	data := []byte(`
columns:
  locality: ["paraje"]
topics:
  - name: Minería
    keywords: ["mina"]
affirmative: ["afirmativo"]
unclassified: "Sin clasificar"
`)
	set, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"paraje"}, set.Columns[FieldLocality])
	assert.Equal(t, []string{"fecha"}, set.Columns[FieldDate], "untouched sections keep defaults")
	assert.Equal(t, []string{"Minería"}, set.TopicNames())
	assert.True(t, set.IsAffirmative("Afirmativo"))
	assert.False(t, set.IsAffirmative("si"))
	assert.Equal(t, "Sin clasificar", set.Unclassified)
}

func TestParseRejectsBadPattern(t *testing.T) {
	_, err := Parse([]byte("seizure_cleanup: [\"(unclosed\"]"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	set, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, set.Topics, 5)

	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tables:\n  detainees: [\"arrestados\"]\n"), 0o644))
	set, err = LoadFile(path)
	require.NoError(t, err)
	kind, ok := set.TableKind("arrestados")
	assert.True(t, ok)
	assert.Equal(t, TableDetainees, kind)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
