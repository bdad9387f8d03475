package model

import "strings"

// FilterSpec is the active filter state produced by a presentation layer.
// Multi-value dimensions are OR'ed internally and AND'ed with each other.
type FilterSpec struct {
	DateFrom      string   `json:"dateFrom,omitempty"`
	DateTo        string   `json:"dateTo,omitempty"`
	Provinces     []string `json:"provincia,omitempty"`
	Regions       []string `json:"region,omitempty"`
	ActivityTypes []string `json:"tipoActividad,omitempty"`
	TopicAreas    []string `json:"areaTematica,omitempty"`
	SearchText    string   `json:"searchText,omitempty"`
}

// HasDateRange reports whether either date bound is set.
func (f FilterSpec) HasDateRange() bool {
	return strings.TrimSpace(f.DateFrom) != "" || strings.TrimSpace(f.DateTo) != ""
}

// IsZero reports whether no dimension constrains the result.
func (f FilterSpec) IsZero() bool {
	return !f.HasDateRange() &&
		len(nonEmpty(f.Provinces)) == 0 &&
		len(nonEmpty(f.Regions)) == 0 &&
		len(nonEmpty(f.ActivityTypes)) == 0 &&
		len(nonEmpty(f.TopicAreas)) == 0 &&
		strings.TrimSpace(f.SearchText) == ""
}

func nonEmpty(in []string) []string {
	var out []string
	for _, v := range in {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
