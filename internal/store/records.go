package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

func sortedKeys(record map[string]string) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		if k == IDColumn || k == orderColumn {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Insert writes one record into table and returns its new row id. The table
// and any missing columns are created on demand.
func (s *Store) Insert(ctx context.Context, table string, record map[string]string) (string, error) {
	keys := sortedKeys(record)
	if err := s.EnsureTable(ctx, table, keys); err != nil {
		return "", err
	}
	quoted, _ := quoteIdent(table)

	id := uuid.New().String()
	cols := []string{`"` + IDColumn + `"`, `"` + orderColumn + `"`}
	args := []any{id, time.Now().UnixNano()}
	for _, k := range keys {
		cols = append(cols, `"`+k+`"`)
		args = append(args, record[k])
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	query := "INSERT INTO " + quoted + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"
	if _, err := s.exec(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return id, nil
}

// Update sets the given columns on the row with id. Columns not in partial are left alone.
func (s *Store) Update(ctx context.Context, table, id string, partial map[string]string) error {
	keys := sortedKeys(partial)
	if len(keys) == 0 {
		return nil
	}
	if err := s.EnsureTable(ctx, table, keys); err != nil {
		return err
	}
	quoted, _ := quoteIdent(table)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		sets = append(sets, `"`+k+`" = ?`)
		args = append(args, partial[k])
	}
	args = append(args, id)
	query := "UPDATE " + quoted + " SET " + strings.Join(sets, ", ") + ` WHERE "` + IDColumn + `" = ?`
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s row %s: %w", table, id, err)
	}
	return requireAffected(res, table, id)
}

// Delete removes the row with id from table.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	quoted, err := quoteIdent(table)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, "DELETE FROM "+quoted+` WHERE "`+IDColumn+`" = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s row %s: %w", table, id, err)
	}
	return requireAffected(res, table, id)
}

// FindIDByCaseNumber returns the id of the first row in table whose
// numerocaso column equals caseNumber.
func (s *Store) FindIDByCaseNumber(ctx context.Context, table, caseNumber string) (string, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return "", err
	}
	exists, err := s.TableExists(ctx, table)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: table %s does not exist", ErrRowNotFound, table)
	}

	var id string
	query := `SELECT "` + IDColumn + `" FROM ` + quoted + ` WHERE "` + CaseNumberColumn + `" = ? LIMIT 1`
	err = s.queryRow(ctx, query, caseNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: case %s in %s", ErrRowNotFound, caseNumber, table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find case %s in %s: %w", caseNumber, table, err)
	}
	return id, nil
}

func requireAffected(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s row %s", ErrRowNotFound, table, id)
	}
	return nil
}
