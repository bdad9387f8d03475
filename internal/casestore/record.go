package casestore

import (
	"strconv"

	"github.com/senpa-rd/casewatch/internal/model"
)

// Primary table column names written for a case. They are chosen so the
// reconciler reads them back into the same fields.
const (
	ColCaseNumber   = "numerocaso"
	ColDate         = "fecha"
	ColTime         = "hora"
	ColProvince     = "provincia"
	ColLocality     = "localidad"
	ColRegion       = "region"
	ColActivityType = "tipoactividad"
	ColTopicArea    = "areatematica"
	ColResult       = "resultado"
	ColNotified     = "notificados"
	ColProsecutor   = "procuraduria"
	ColCoordinates  = "coordenadas"
)

// Record maps c onto primary table columns.
func Record(c *model.Case) map[string]string {
	return map[string]string{
		ColCaseNumber:   c.CaseNumber,
		ColDate:         c.Date,
		ColTime:         c.Time,
		ColProvince:     c.Province,
		ColLocality:     c.Locality,
		ColRegion:       c.Region,
		ColActivityType: c.ActivityType,
		ColTopicArea:    c.TopicArea,
		ColResult:       c.ResultNotes,
		ColNotified:     notifiedValue(c.NotifiedFlag),
		ColProsecutor:   prosecutorValue(c.ProsecutorReferral),
		ColCoordinates:  coordinatesValue(c.Coordinates),
	}
}

func notifiedValue(flag int) string {
	if flag == 1 {
		return "1"
	}
	return ""
}

func prosecutorValue(v bool) string {
	if v {
		return "Sí"
	}
	return "No"
}

func coordinatesValue(c *model.Coordinates) string {
	if c == nil {
		return ""
	}
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Patch is a partial case update. Nil fields are left unchanged.
type Patch struct {
	Date               *string            `json:"date,omitempty"`
	Time               *string            `json:"time,omitempty"`
	Province           *string            `json:"province,omitempty"`
	Locality           *string            `json:"locality,omitempty"`
	Region             *string            `json:"region,omitempty"`
	ActivityType       *string            `json:"activityType,omitempty"`
	TopicArea          *string            `json:"topicArea,omitempty"`
	ResultNotes        *string            `json:"resultNotes,omitempty"`
	DetaineeCount      *int               `json:"detaineeCount,omitempty"`
	VehicleCount       *int               `json:"vehicleCount,omitempty"`
	NotifiedFlag       *int               `json:"notifiedFlag,omitempty"`
	ProsecutorReferral *bool              `json:"prosecutorReferral,omitempty"`
	Seizures           *[]string          `json:"seizures,omitempty"`
	Coordinates        *model.Coordinates `json:"coordinates,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Date == nil && p.Time == nil && p.Province == nil && p.Locality == nil &&
		p.Region == nil && p.ActivityType == nil && p.TopicArea == nil && p.ResultNotes == nil &&
		p.DetaineeCount == nil && p.VehicleCount == nil && p.NotifiedFlag == nil &&
		p.ProsecutorReferral == nil && p.Seizures == nil && p.Coordinates == nil
}

// Apply writes the patch onto c and returns the primary table columns that changed.
func (p Patch) Apply(c *model.Case) map[string]string {
	cols := make(map[string]string)
	setString := func(dst *string, src *string, col string) {
		if src == nil {
			return
		}
		*dst = *src
		cols[col] = *src
	}
	setString(&c.Date, p.Date, ColDate)
	setString(&c.Time, p.Time, ColTime)
	setString(&c.Province, p.Province, ColProvince)
	setString(&c.Locality, p.Locality, ColLocality)
	setString(&c.Region, p.Region, ColRegion)
	setString(&c.ActivityType, p.ActivityType, ColActivityType)
	setString(&c.TopicArea, p.TopicArea, ColTopicArea)
	setString(&c.ResultNotes, p.ResultNotes, ColResult)

	if p.DetaineeCount != nil {
		c.DetaineeCount = *p.DetaineeCount
	}
	if p.VehicleCount != nil {
		c.VehicleCount = *p.VehicleCount
	}
	if p.NotifiedFlag != nil {
		c.NotifiedFlag = *p.NotifiedFlag
		cols[ColNotified] = notifiedValue(c.NotifiedFlag)
	}
	if p.ProsecutorReferral != nil {
		c.ProsecutorReferral = *p.ProsecutorReferral
		cols[ColProsecutor] = prosecutorValue(c.ProsecutorReferral)
	}
	if p.Seizures != nil {
		c.Seizures = append([]string{}, (*p.Seizures)...)
	}
	if p.Coordinates != nil {
		coords := *p.Coordinates
		c.Coordinates = &coords
		cols[ColCoordinates] = coordinatesValue(c.Coordinates)
	}
	return cols
}
