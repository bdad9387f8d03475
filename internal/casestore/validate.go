package casestore

import (
	"errors"
	"regexp"
	"strings"

	"github.com/senpa-rd/casewatch/internal/model"
)

var (
	// ErrCaseExists is returned when creating a case whose number is taken.
	ErrCaseExists = errors.New("a case with this number already exists")
	// ErrCaseNotFound is returned when updating or deleting an unknown case.
	ErrCaseNotFound = errors.New("case not found")
)

// ValidationError lists every problem found with a case.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid case: " + strings.Join(e.Messages, "; ")
}

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}`),
		regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{4}$`),
		regexp.MustCompile(`^\d{4}/\d{1,2}/\d{1,2}$`),
	}
	timePattern = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
)

// Validate returns human-readable problems with c, nil when it is acceptable.
func Validate(c *model.Case) []string {
	if c == nil {
		return []string{"case is required"}
	}
	var msgs []string
	if strings.TrimSpace(c.CaseNumber) == "" {
		msgs = append(msgs, "case number is required")
	}
	if c.DetaineeCount < 0 {
		msgs = append(msgs, "detainee count must not be negative")
	}
	if c.VehicleCount < 0 {
		msgs = append(msgs, "vehicle count must not be negative")
	}
	if c.NotifiedFlag != 0 && c.NotifiedFlag != 1 {
		msgs = append(msgs, "notified flag must be 0 or 1")
	}
	if d := strings.TrimSpace(c.Date); d != "" && !matchesAny(d, datePatterns) {
		msgs = append(msgs, "date must look like YYYY-MM-DD or DD/MM/YYYY")
	}
	if tm := strings.TrimSpace(c.Time); tm != "" && !timePattern.MatchString(tm) {
		msgs = append(msgs, "time must look like HH:MM")
	}
	if c.Coordinates != nil && !c.Coordinates.Valid() {
		msgs = append(msgs, "coordinates must be non-zero with latitude in [-90, 90] and longitude in [-180, 180]")
	}
	return msgs
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func validationError(c *model.Case) error {
	if msgs := Validate(c); len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}
