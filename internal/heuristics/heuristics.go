// Package heuristics holds the keyword lookup tables used to make sense of
// loosely structured source tables: which header is which field, which table
// holds detainees or seizures, how free-text topic areas map onto the fixed
// categories and how seizure descriptions are cleaned.
//
// Everything here is data. The defaults can be overlaid from a YAML file so
// deployments with different column naming do not need a rebuild.
package heuristics

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Field is a canonical case field located by header keywords.
type Field string

const (
	FieldCaseNumber   Field = "case_number"
	FieldDate         Field = "date"
	FieldTime         Field = "time"
	FieldProvince     Field = "province"
	FieldLocality     Field = "locality"
	FieldRegion       Field = "region"
	FieldActivityType Field = "activity_type"
	FieldTopicArea    Field = "topic_area"
	FieldResult       Field = "result"
	FieldNotified     Field = "notified"
	FieldProsecutor   Field = "prosecutor"
	FieldName         Field = "name"
	FieldNationality  Field = "nationality"
	FieldVehicleType  Field = "vehicle_type"
	FieldPlate        Field = "plate"
	FieldSeizureType  Field = "seizure_type"
	FieldQuantity     Field = "quantity"
	FieldCoordinates  Field = "coordinates"
	FieldLatitude     Field = "latitude"
	FieldLongitude    Field = "longitude"
)

// TableKind classifies a source table by its name.
type TableKind string

const (
	TableDetainees TableKind = "detainees"
	TableVehicles  TableKind = "vehicles"
	TableSeizures  TableKind = "seizures"
	TableNotified  TableKind = "notified"
)

// tableKindOrder fixes evaluation order so a name matching several kinds is
// stable. Notified comes first: "personas_notificadas" is not a detainee table.
var tableKindOrder = []TableKind{TableNotified, TableDetainees, TableVehicles, TableSeizures}

// fieldOrder fixes evaluation order for Index.
var fieldOrder = []Field{
	FieldCaseNumber, FieldDate, FieldTime, FieldProvince, FieldLocality, FieldRegion,
	FieldActivityType, FieldTopicArea, FieldResult, FieldNotified, FieldProsecutor,
	FieldName, FieldNationality, FieldVehicleType, FieldPlate, FieldSeizureType,
	FieldQuantity, FieldCoordinates, FieldLatitude, FieldLongitude,
}

// TopicCategory is one of the fixed topic areas with the substrings that select it.
type TopicCategory struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Set is a complete collection of lookup tables.
type Set struct {
	// Columns maps a field to header keywords in priority order. A keyword
	// starting with "^" matches header prefixes only; others match substrings.
	Columns map[Field][]string
	// Tables maps a table kind to table-name keywords.
	Tables map[TableKind][]string
	// Topics lists the canonical topic areas in classification order.
	Topics []TopicCategory
	// SeizureCleanup holds patterns removed from seizure descriptions.
	SeizureCleanup []*regexp.Regexp
	// Affirmative lists folded values meaning "yes".
	Affirmative []string
	// Unclassified is the label for topic areas no category matches.
	Unclassified string
}

// Default returns the built-in lookup tables.
func Default() *Set {
	return &Set{
		Columns: map[Field][]string{
			FieldCaseNumber:   {"numerocaso", "numero_caso", "caso"},
			FieldDate:         {"fecha"},
			FieldTime:         {"hora"},
			FieldProvince:     {"provincia"},
			FieldLocality:     {"localidad", "lugar", "municipio", "sector"},
			FieldRegion:       {"region"},
			FieldActivityType: {"tipoactividad", "tipo_actividad", "actividad"},
			FieldTopicArea:    {"areatematica", "area_tematica", "tematica", "area"},
			FieldResult:       {"resultado", "observacion"},
			FieldNotified:     {"notificad"},
			FieldProsecutor:   {"procuraduria", "fiscalia", "sometimiento", "remitido"},
			FieldName:         {"nombre"},
			FieldNationality:  {"nacionalidad"},
			FieldVehicleType:  {"tipovehiculo", "tipo_vehiculo", "tipo", "vehiculo", "marca"},
			FieldPlate:        {"placa", "matricula", "chasis"},
			FieldSeizureType:  {"tipoincautacion", "tipo_incautacion", "descripcion", "tipo", "objeto", "articulo", "item", "especie"},
			FieldQuantity:     {"cantidad", "cant", "unidades", "total"},
			FieldCoordinates:  {"coordenada"},
			FieldLatitude:     {"latitud", "^lat"},
			FieldLongitude:    {"longitud", "^lng", "^lon"},
		},
		Tables: map[TableKind][]string{
			TableDetainees: {"detenido", "persona"},
			TableVehicles:  {"vehiculo", "transporte"},
			TableSeizures:  {"incautacion", "incautaciones", "decomiso", "confiscacion", "requisas", "objetos"},
			TableNotified:  {"notificad"},
		},
		Topics: []TopicCategory{
			{Name: "Recursos Forestales", Keywords: []string{"forestal", "bosque", "madera", "tala", "carbon", "arbol", "lena"}},
			{Name: "Áreas Protegidas", Keywords: []string{"protegida", "biodiversidad", "fauna", "flora", "parque", "reserva", "silvestre"}},
			{Name: "Suelos y Aguas", Keywords: []string{"suelo", "agua", "rio", "arena", "agregado", "mineria", "cauce", "grava"}},
			{Name: "Gestión Ambiental", Keywords: []string{"gestion", "contaminacion", "residuo", "desecho", "ruido", "emision", "quimico"}},
			{Name: "Costeros y Marinos", Keywords: []string{"costero", "marino", "playa", "coral", "pesca", "manglar"}},
		},
		SeizureCleanup: mustCompileAll([]string{
			`(?i)^\s*caso\s*[#:]?\s*[\w-]+\s*[:\-]\s*`,
			`(?i)^\s*[a-z]{1,4}-\d+(?:-\d+)*\s*[:\-]?\s*`,
			`^\s*#\d+\s*[:\-]?\s*`,
		}),
		Affirmative:  []string{"si", "s", "yes", "y", "true", "1", "x", "sometido", "remitido", "referido"},
		Unclassified: "Otros",
	}
}

func mustCompileAll(patterns []string) []*regexp.Regexp {
	out, err := compileAll(patterns)
	if err != nil {
		panic(err)
	}
	return out
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid seizure cleanup pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Fold lowercases, trims and strips diacritics so "Región" matches "region".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func keywordMatches(folded, keyword string) bool {
	if strings.HasPrefix(keyword, "^") {
		return strings.HasPrefix(folded, Fold(keyword[1:]))
	}
	return strings.Contains(folded, Fold(keyword))
}

// ColumnIndex maps canonical fields to the header names that carry them in one table.
type ColumnIndex map[Field]string

// Column returns the header for f and whether it was found.
func (ci ColumnIndex) Column(f Field) (string, bool) {
	h, ok := ci[f]
	return h, ok
}

// Index resolves every known field against a header row. For each field the
// first keyword (in priority order) that matches any header wins, and among
// headers the leftmost match is used.
func (s *Set) Index(header []string) ColumnIndex {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = Fold(h)
	}
	idx := make(ColumnIndex)
	for _, field := range fieldOrder {
		for _, kw := range s.Columns[field] {
			found := false
			for i, fh := range folded {
				if fh == "" {
					continue
				}
				if keywordMatches(fh, kw) {
					idx[field] = header[i]
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return idx
}

// TableKind classifies a table by name keywords.
func (s *Set) TableKind(name string) (TableKind, bool) {
	folded := Fold(name)
	for _, kind := range tableKindOrder {
		for _, kw := range s.Tables[kind] {
			if keywordMatches(folded, kw) {
				return kind, true
			}
		}
	}
	return "", false
}

// ClassifyTopic maps free-text topic area onto a canonical category.
func (s *Set) ClassifyTopic(text string) (string, bool) {
	folded := Fold(text)
	if folded == "" {
		return "", false
	}
	for _, cat := range s.Topics {
		for _, kw := range cat.Keywords {
			if keywordMatches(folded, kw) {
				return cat.Name, true
			}
		}
	}
	return "", false
}

// TopicNames returns the canonical topic areas in order.
func (s *Set) TopicNames() []string {
	out := make([]string, 0, len(s.Topics))
	for _, t := range s.Topics {
		out = append(out, t.Name)
	}
	return out
}

// CleanSeizureType strips case-code prefixes and collapses whitespace.
func (s *Set) CleanSeizureType(raw string) string {
	out := raw
	for _, re := range s.SeizureCleanup {
		out = re.ReplaceAllString(out, "")
	}
	out = strings.Join(strings.Fields(out), " ")
	return strings.Trim(out, " .,;:-")
}

// IsAffirmative reports whether v reads as "yes".
func (s *Set) IsAffirmative(v string) bool {
	folded := Fold(v)
	if folded == "" {
		return false
	}
	for _, a := range s.Affirmative {
		if folded == Fold(a) {
			return true
		}
	}
	return false
}
