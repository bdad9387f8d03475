// Package export renders case lists, metrics and breakdowns to CSV and PNG
// and writes the results to a local directory or an S3 bucket.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// CaseColumns is the header row written by WriteCasesCSV.
var CaseColumns = []string{
	"Número de caso", "Fecha", "Hora", "Provincia", "Localidad", "Región",
	"Tipo de actividad", "Área temática", "Detenidos", "Vehículos retenidos",
	"Incautaciones", "Notificados", "Procuraduría", "Resultado", "Latitud", "Longitud",
}

// WriteCasesCSV writes one row per case with every field quoted.
func WriteCasesCSV(w io.Writer, cases []*model.Case) error {
	bw := bufio.NewWriter(w)
	if err := writeQuoted(bw, CaseColumns); err != nil {
		return err
	}
	for _, c := range cases {
		if err := writeQuoted(bw, caseRecord(c)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func caseRecord(c *model.Case) []string {
	lat, lng := "", ""
	if c.Coordinates != nil {
		lat = strconv.FormatFloat(c.Coordinates.Lat, 'f', -1, 64)
		lng = strconv.FormatFloat(c.Coordinates.Lng, 'f', -1, 64)
	}
	prosecutor := "No"
	if c.ProsecutorReferral {
		prosecutor = "Sí"
	}
	return []string{
		c.CaseNumber, c.Date, c.Time, c.Province, c.Locality, c.Region,
		c.ActivityType, c.TopicArea,
		strconv.Itoa(c.DetaineeCount),
		strconv.Itoa(c.VehicleCount),
		strings.Join(c.Seizures, "; "),
		strconv.Itoa(c.NotifiedFlag),
		prosecutor,
		c.ResultNotes,
		lat, lng,
	}
}

// WriteMetricsCSV writes the headline metrics as indicator,value rows.
func WriteMetricsCSV(w io.Writer, m analytics.Metrics) error {
	rows := [][]string{
		{"Indicador", "Valor"},
		{"Operativos", strconv.Itoa(m.Operations)},
		{"Patrullas", strconv.Itoa(m.Patrols)},
		{"Total de casos", strconv.Itoa(m.TotalCases)},
		{"Detenidos", strconv.Itoa(m.Detainees)},
		{"Vehículos retenidos", strconv.Itoa(m.Vehicles)},
		{"Incautaciones", strconv.Itoa(m.Seizures)},
		{"Áreas intervenidas", strconv.Itoa(m.IntervenedAreas)},
		{"Notificados", strconv.Itoa(m.Notified)},
		{"Procuraduría", strconv.Itoa(m.ProsecutorReferrals)},
		{"Regiones", strconv.Itoa(m.Regions)},
	}
	bw := bufio.NewWriter(w)
	for _, r := range rows {
		if err := writeQuoted(bw, r); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteBreakdownCSV writes a regional or provincial breakdown.
func WriteBreakdownCSV(w io.Writer, label string, rows []analytics.AreaBreakdown) error {
	bw := bufio.NewWriter(w)
	if err := writeQuoted(bw, []string{label, "Operativos", "Patrullas", "Detenidos", "Vehículos", "Total"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Name,
			strconv.Itoa(r.Operations),
			strconv.Itoa(r.Patrols),
			strconv.Itoa(r.Detainees),
			strconv.Itoa(r.Vehicles),
			strconv.Itoa(r.Total),
		}
		if err := writeQuoted(bw, rec); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// writeQuoted writes one record with every field double-quoted and inner
// quotes doubled. encoding/csv only quotes fields that need it.
func writeQuoted(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
