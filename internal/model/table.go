package model

import "strings"

// Table is one named source table: Data[0] is the header row, Data[1:] are value rows.
// An empty table has a nil Data slice.
type Table struct {
	Name string     `json:"name"`
	Data [][]string `json:"data"`
}

// Header returns the header row or nil.
func (t Table) Header() []string {
	if len(t.Data) == 0 {
		return nil
	}
	return t.Data[0]
}

// Rows returns the value rows (everything after the header).
func (t Table) Rows() [][]string {
	if len(t.Data) <= 1 {
		return nil
	}
	return t.Data[1:]
}

// Row is a flexible record keyed by column name. Lookups on missing keys return "".
type Row map[string]string

// NewRow aligns values to header names. Short rows are padded with "", extra values dropped.
func NewRow(header, values []string) Row {
	r := make(Row, len(header))
	for i, h := range header {
		if i < len(values) {
			r[h] = values[i]
		} else {
			r[h] = ""
		}
	}
	return r
}

// Get returns the trimmed value for key.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// Has reports whether key is present with a non-empty value.
func (r Row) Has(key string) bool {
	return r.Get(key) != ""
}

// Cell safely returns values[i] trimmed, or "" when i is out of range or negative.
func Cell(values []string, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[i])
}
