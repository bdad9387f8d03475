package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/senpa-rd/casewatch/internal/heuristics"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func dialectFor(driver string) dialect {
	if driver == DriverPostgres {
		return dialectPostgres
	}
	return dialectSQLite
}

// rebind rewrites "?" placeholders into "$n" for Postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d dialect) tableExistsQuery() string {
	if d == dialectPostgres {
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
	}
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

func (d dialect) listTablesQuery() string {
	if d == dialectPostgres {
		return `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	}
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (d dialect) auditMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			case_number TEXT NOT NULL,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			metadata TEXT,
			timestamp BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_case_number ON audit_entries(case_number)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

func quoteIdent(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return `"` + name + `"`, nil
}

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SanitizeIdentifier turns a free-form header or file name into a usable
// identifier: accents folded, lowercased, other characters replaced by "_".
// It returns "" when nothing usable remains.
func SanitizeIdentifier(s string) string {
	out := nonIdentChars.ReplaceAllString(heuristics.Fold(s), "_")
	out = strings.Trim(out, "_")
	if out == "" {
		return ""
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "c_" + out
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return out
}
