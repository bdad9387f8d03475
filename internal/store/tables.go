package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/senpa-rd/casewatch/internal/model"
)

const (
	// IDColumn is the opaque row id column added to every table created here.
	IDColumn = "id"
	// CaseNumberColumn is the case-number key on the primary table.
	CaseNumberColumn = "numerocaso"
	// orderColumn preserves insertion order across dialects. It is never
	// returned by ReadTable.
	orderColumn = "row_order"
)

// TableExists reports whether name exists in the current database or schema.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var count int
	if err := s.queryRow(ctx, s.dialect.tableExistsQuery(), name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}

// ListTables returns the names of all tables except the audit log.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, s.dialect.listTablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if name == "audit_entries" {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// columns returns the column names of an existing table in declaration order.
func (s *Store) columns(ctx context.Context, quoted string) ([]string, error) {
	rows, err := s.query(ctx, "SELECT * FROM "+quoted+" WHERE 1=0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

// ReadTable returns the table as a header row followed by value rows. A
// missing table, or one without rows, yields a Table with nil Data.
func (s *Store) ReadTable(ctx context.Context, name string) (model.Table, error) {
	table := model.Table{Name: name}
	quoted, err := quoteIdent(name)
	if err != nil {
		return table, err
	}
	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return table, err
	}
	if !exists {
		return table, nil
	}

	cols, err := s.columns(ctx, quoted)
	if err != nil {
		return table, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	header := make([]string, 0, len(cols))
	selectCols := make([]string, 0, len(cols))
	ordered := false
	for _, c := range cols {
		if c == orderColumn {
			ordered = true
			continue
		}
		header = append(header, c)
		selectCols = append(selectCols, `"`+strings.ReplaceAll(c, `"`, `""`)+`"`)
	}
	if len(header) == 0 {
		return table, nil
	}

	query := "SELECT " + strings.Join(selectCols, ", ") + " FROM " + quoted
	if ordered {
		query += " ORDER BY " + orderColumn
	}
	rows, err := s.query(ctx, query)
	if err != nil {
		return table, fmt.Errorf("failed to query table %s: %w", name, err)
	}
	defer rows.Close()

	var data [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(header))
		dest := make([]any, len(header))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return table, fmt.Errorf("failed to scan row of %s: %w", name, err)
		}
		row := make([]string, len(header))
		for i, v := range values {
			row[i] = v.String
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return table, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	if len(data) == 0 {
		return table, nil
	}
	table.Data = append([][]string{header}, data...)
	return table, nil
}

// EnsureTable creates name with an id column plus the given TEXT columns, or
// adds whichever columns an existing table lacks.
func (s *Store) EnsureTable(ctx context.Context, name string, columns []string) error {
	quoted, err := quoteIdent(name)
	if err != nil {
		return err
	}
	for _, c := range columns {
		if _, err := quoteIdent(c); err != nil {
			return err
		}
	}

	exists, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		defs := []string{`"` + IDColumn + `" TEXT PRIMARY KEY`, `"` + orderColumn + `" BIGINT`}
		for _, c := range columns {
			if c == IDColumn || c == orderColumn {
				continue
			}
			defs = append(defs, `"`+c+`" TEXT`)
		}
		if _, err := s.exec(ctx, "CREATE TABLE IF NOT EXISTS "+quoted+" ("+strings.Join(defs, ", ")+")"); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		return nil
	}

	existing, err := s.columns(ctx, quoted)
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", name, err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}
	for _, c := range columns {
		if have[strings.ToLower(c)] {
			continue
		}
		if _, err := s.exec(ctx, "ALTER TABLE "+quoted+` ADD COLUMN "`+c+`" TEXT`); err != nil {
			return fmt.Errorf("failed to add column %s to %s: %w", c, name, err)
		}
		have[strings.ToLower(c)] = true
	}
	return nil
}

// AppendRows inserts rows aligned to header into name, creating the table
// and any missing columns first. A non-empty id value is kept, otherwise a
// new UUID is assigned. It returns the number of rows written.
func (s *Store) AppendRows(ctx context.Context, name string, header []string, rows [][]string) (int, error) {
	if err := s.EnsureTable(ctx, name, header); err != nil {
		return 0, err
	}
	quoted, _ := quoteIdent(name)

	idPos := -1
	cols := []string{`"` + IDColumn + `"`, `"` + orderColumn + `"`}
	var valuePos []int
	for i, h := range header {
		switch h {
		case IDColumn:
			idPos = i
		case orderColumn:
		default:
			cols = append(cols, `"`+h+`"`)
			valuePos = append(valuePos, i)
		}
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	insert := "INSERT INTO " + quoted + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) (int, error) {
		_ = tx.Rollback()
		return 0, e
	}
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(insert))
	if err != nil {
		return rollback(fmt.Errorf("failed to prepare insert into %s: %w", name, err))
	}
	defer stmt.Close()

	base := time.Now().UnixNano()
	for n, row := range rows {
		id := model.Cell(row, idPos)
		if id == "" {
			id = uuid.New().String()
		}
		args := []any{id, base + int64(n)}
		for _, i := range valuePos {
			args = append(args, model.Cell(row, i))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return rollback(fmt.Errorf("failed to insert row %d into %s: %w", n+1, name, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(rows), nil
}

// DropTable removes name if it exists.
func (s *Store) DropTable(ctx context.Context, name string) error {
	quoted, err := quoteIdent(name)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	return nil
}
