// Package analytics turns case lists into dashboard metrics and chart-ready views.
// Every function here is pure: inputs are never modified.
package analytics

import (
	"strings"

	"github.com/senpa-rd/casewatch/internal/filter"
	"github.com/senpa-rd/casewatch/internal/model"
)

// UnknownLabel groups records whose grouping field is empty.
const UnknownLabel = "Sin especificar"

// Metrics is the headline summary of a case set.
type Metrics struct {
	Operations          int `json:"operations"`
	Patrols             int `json:"patrols"`
	TotalCases          int `json:"totalCases"`
	Detainees           int `json:"detainees"`
	Vehicles            int `json:"vehicles"`
	Seizures            int `json:"seizures"`
	IntervenedAreas     int `json:"intervenedAreas"`
	Notified            int `json:"notified"`
	ProsecutorReferrals int `json:"prosecutorReferrals"`
	Regions             int `json:"regions"`
}

// CalculateMetrics applies spec (when non-nil) with the default filter engine
// and summarizes the remaining cases.
func CalculateMetrics(cases []*model.Case, spec *model.FilterSpec) Metrics {
	if spec != nil {
		cases = filter.Apply(cases, *spec)
	}
	return Summarize(cases)
}

// Summarize computes metrics over cases as given.
//
// Notified counts cases with a notification (NotifiedFlag is 0 or 1), not
// notified persons.
func Summarize(cases []*model.Case) Metrics {
	var m Metrics
	areas := make(map[string]struct{})
	regions := make(map[string]struct{})

	for _, c := range cases {
		if c == nil {
			continue
		}
		m.TotalCases++
		if c.IsOperation() {
			m.Operations++
		}
		if c.IsPatrol() {
			m.Patrols++
		}
		m.Detainees += c.DetaineeCount
		m.Vehicles += c.VehicleCount
		m.Seizures += len(c.Seizures)
		m.Notified += c.NotifiedFlag
		if c.ProsecutorReferral {
			m.ProsecutorReferrals++
		}
		if k := distinctKey(c.Locality); k != "" {
			areas[k] = struct{}{}
		}
		if k := distinctKey(c.Region); k != "" {
			regions[k] = struct{}{}
		}
	}
	m.IntervenedAreas = len(areas)
	m.Regions = len(regions)
	return m
}

func distinctKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
