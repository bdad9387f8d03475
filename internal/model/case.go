package model

import "strings"

// Coordinates is a validated geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is inside the lat/lng ranges and not on a zero axis.
func (c Coordinates) Valid() bool {
	if c.Lat == 0 || c.Lng == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// DetaineeDetail represents a person detained in a case
type DetaineeDetail struct {
	Name        string `json:"name"`
	Nationality string `json:"nationality,omitempty"`
}

// VehicleDetail represents a vehicle retained in a case
type VehicleDetail struct {
	Type  string `json:"type"`
	Plate string `json:"plate,omitempty"`
}

// SeizureDetail represents a seized item
type SeizureDetail struct {
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
}

// Case is the unified record for a case number, merged from every source table.
type Case struct {
	CaseNumber         string           `json:"caseNumber"`
	Date               string           `json:"date"`
	Time               string           `json:"time"`
	Province           string           `json:"province"`
	Locality           string           `json:"locality"`
	Region             string           `json:"region"`
	ActivityType       string           `json:"activityType"`
	TopicArea          string           `json:"topicArea"`
	DetaineeCount      int              `json:"detaineeCount"`
	VehicleCount       int              `json:"vehicleCount"`
	Seizures           []string         `json:"seizures"`
	NotifiedFlag       int              `json:"notifiedFlag"`
	ProsecutorReferral bool             `json:"prosecutorReferral"`
	ResultNotes        string           `json:"resultNotes,omitempty"`
	Coordinates        *Coordinates     `json:"coordinates,omitempty"`
	DetaineeDetails    []DetaineeDetail `json:"detaineeDetails,omitempty"`
	VehicleDetails     []VehicleDetail  `json:"vehicleDetails,omitempty"`
	SeizureDetails     []SeizureDetail  `json:"seizureDetails,omitempty"`
}

// NewCase returns an empty case for the given number with zeroed counters.
func NewCase(caseNumber string) *Case {
	return &Case{
		CaseNumber: caseNumber,
		Seizures:   []string{},
	}
}

// Clone returns a deep copy of the case.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Seizures = append([]string{}, c.Seizures...)
	if c.Coordinates != nil {
		coords := *c.Coordinates
		out.Coordinates = &coords
	}
	if c.DetaineeDetails != nil {
		out.DetaineeDetails = append([]DetaineeDetail(nil), c.DetaineeDetails...)
	}
	if c.VehicleDetails != nil {
		out.VehicleDetails = append([]VehicleDetail(nil), c.VehicleDetails...)
	}
	if c.SeizureDetails != nil {
		out.SeizureDetails = append([]SeizureDetail(nil), c.SeizureDetails...)
	}
	return &out
}

// IsOperation reports whether the activity type names an operation ("operativo").
func (c *Case) IsOperation() bool {
	return strings.Contains(strings.ToLower(c.ActivityType), "operativo")
}

// IsPatrol reports whether the activity type names a patrol ("patrulla").
func (c *Case) IsPatrol() bool {
	return strings.Contains(strings.ToLower(c.ActivityType), "patrulla")
}

// SearchText is the lowercase haystack used by free-text search.
func (c *Case) SearchText() string {
	parts := []string{c.Locality, c.Province, c.TopicArea, c.ActivityType}
	parts = append(parts, c.Seizures...)
	return strings.ToLower(strings.Join(parts, " "))
}
