// Package reconcile merges rows from heterogeneous source tables into one
// Case per case number.
package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/heuristics"
	"github.com/senpa-rd/casewatch/internal/model"
)

// Reconciler joins source tables by case number. It never fails on malformed
// data: unreadable values degrade to empty strings and zero counts.
type Reconciler struct {
	set    *heuristics.Set
	logger *zap.Logger
}

// New creates a reconciler. A nil set uses heuristics.Default, a nil logger discards.
func New(set *heuristics.Set, logger *zap.Logger) *Reconciler {
	if set == nil {
		set = heuristics.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{set: set, logger: logger}
}

// Heuristics returns the lookup tables in use.
func (r *Reconciler) Heuristics() *heuristics.Set {
	return r.set
}

// Reconcile builds a fresh case map from tables.
func (r *Reconciler) Reconcile(tables []model.Table) map[string]*model.Case {
	cases := make(map[string]*model.Case)
	r.Merge(cases, tables)
	return cases
}

// Merge folds tables into an existing case map, processing tables in order.
func (r *Reconciler) Merge(cases map[string]*model.Case, tables []model.Table) {
	for _, t := range tables {
		r.mergeTable(cases, t)
	}
	r.logger.Debug("reconciled tables", zap.Int("tables", len(tables)), zap.Int("cases", len(cases)))
}

func (r *Reconciler) mergeTable(cases map[string]*model.Case, t model.Table) {
	if len(t.Data) <= 1 {
		r.logger.Debug("skipping table without data rows", zap.String("table", t.Name))
		return
	}
	header := t.Header()
	idx := r.set.Index(header)
	caseCol, ok := idx.Column(heuristics.FieldCaseNumber)
	if !ok {
		r.logger.Debug("skipping table without case number column", zap.String("table", t.Name))
		return
	}
	kind, hasKind := r.set.TableKind(t.Name)

	for _, values := range t.Rows() {
		row := model.NewRow(header, values)
		number := row.Get(caseCol)
		if number == "" {
			continue
		}
		c, seen := cases[number]
		if !seen {
			c = model.NewCase(number)
			cases[number] = c
			r.applyGeneric(c, row, idx)
		}
		r.applyFlags(c, row, idx)
		r.applyCoordinates(c, row, idx)
		if hasKind {
			r.accumulate(c, kind, row, idx)
		}
	}
}

// value reads field f from row, "" when the table has no such column.
func value(row model.Row, idx heuristics.ColumnIndex, f heuristics.Field) string {
	col, ok := idx.Column(f)
	if !ok {
		return ""
	}
	return row.Get(col)
}

// applyGeneric sets the descriptive fields of a newly created case from the
// table it was first seen in. Later sightings leave them alone.
func (r *Reconciler) applyGeneric(c *model.Case, row model.Row, idx heuristics.ColumnIndex) {
	c.Date = value(row, idx, heuristics.FieldDate)
	c.Time = value(row, idx, heuristics.FieldTime)
	c.Province = value(row, idx, heuristics.FieldProvince)
	c.Region = value(row, idx, heuristics.FieldRegion)
	c.Locality = value(row, idx, heuristics.FieldLocality)
	c.ActivityType = value(row, idx, heuristics.FieldActivityType)
	c.TopicArea = value(row, idx, heuristics.FieldTopicArea)
	c.ResultNotes = value(row, idx, heuristics.FieldResult)
}

// applyFlags only ever raises the notified and prosecutor flags.
func (r *Reconciler) applyFlags(c *model.Case, row model.Row, idx heuristics.ColumnIndex) {
	if value(row, idx, heuristics.FieldNotified) != "" {
		c.NotifiedFlag = 1
	}
	if r.set.IsAffirmative(value(row, idx, heuristics.FieldProsecutor)) {
		c.ProsecutorReferral = true
	}
}

func (r *Reconciler) applyCoordinates(c *model.Case, row model.Row, idx heuristics.ColumnIndex) {
	if c.Coordinates != nil {
		return
	}
	if combined := value(row, idx, heuristics.FieldCoordinates); combined != "" {
		if coords, ok := ParseCoordinates(combined); ok {
			c.Coordinates = &coords
			return
		}
	}
	lat := value(row, idx, heuristics.FieldLatitude)
	lng := value(row, idx, heuristics.FieldLongitude)
	if lat == "" || lng == "" {
		return
	}
	if coords, ok := coordinatesFrom(lat, lng); ok {
		c.Coordinates = &coords
	}
}

func (r *Reconciler) accumulate(c *model.Case, kind heuristics.TableKind, row model.Row, idx heuristics.ColumnIndex) {
	switch kind {
	case heuristics.TableDetainees:
		name := value(row, idx, heuristics.FieldName)
		if name == "" {
			return
		}
		c.DetaineeCount++
		c.DetaineeDetails = append(c.DetaineeDetails, model.DetaineeDetail{
			Name:        name,
			Nationality: value(row, idx, heuristics.FieldNationality),
		})

	case heuristics.TableVehicles:
		typ := value(row, idx, heuristics.FieldVehicleType)
		if typ == "" {
			return
		}
		c.VehicleCount++
		c.VehicleDetails = append(c.VehicleDetails, model.VehicleDetail{
			Type:  typ,
			Plate: value(row, idx, heuristics.FieldPlate),
		})

	case heuristics.TableSeizures:
		typ := value(row, idx, heuristics.FieldSeizureType)
		if typ == "" {
			return
		}
		qty := value(row, idx, heuristics.FieldQuantity)
		if qty == "" {
			qty = "1"
		}
		c.Seizures = append(c.Seizures, fmt.Sprintf("%s %s", qty, typ))
		c.SeizureDetails = append(c.SeizureDetails, model.SeizureDetail{Type: typ, Quantity: qty})

	case heuristics.TableNotified:
		// Presence flag, not a sum of notified persons.
		if _, ok := idx.Column(heuristics.FieldQuantity); ok {
			if value(row, idx, heuristics.FieldQuantity) != "" {
				c.NotifiedFlag = 1
			}
			return
		}
		if value(row, idx, heuristics.FieldName) != "" {
			c.NotifiedFlag = 1
		}
	}
}

// ParseCoordinates parses a combined "lat,lng" string. Zero or out-of-range values are rejected.
func ParseCoordinates(s string) (model.Coordinates, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Coordinates{}, false
	}
	return coordinatesFrom(parts[0], parts[1])
}

func coordinatesFrom(latStr, lngStr string) (model.Coordinates, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return model.Coordinates{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return model.Coordinates{}, false
	}
	c := model.Coordinates{Lat: lat, Lng: lng}
	if !c.Valid() {
		return model.Coordinates{}, false
	}
	return c, true
}
