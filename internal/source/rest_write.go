package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/senpa-rd/casewatch/internal/store"
)

// Row-level writes against the same backend, using PostgREST filters
// (?id=eq.X). Every write asks for the affected rows back so a filter that
// matched nothing can be reported as store.ErrRowNotFound.

// Insert posts record to table and returns the id assigned by the backend.
func (r *REST) Insert(ctx context.Context, table string, record map[string]string) (string, error) {
	rows, err := r.write(ctx, http.MethodPost, r.rowsURL(table, nil), record)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return stringify(rows[0][store.IDColumn]), nil
}

// Update patches the row with id in table.
func (r *REST) Update(ctx context.Context, table, id string, partial map[string]string) error {
	rows, err := r.write(ctx, http.MethodPatch, r.rowsURL(table, idFilter(id)), partial)
	if err != nil {
		return fmt.Errorf("failed to update %s row %s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s row %s", store.ErrRowNotFound, table, id)
	}
	return nil
}

// Delete removes the row with id from table.
func (r *REST) Delete(ctx context.Context, table, id string) error {
	rows, err := r.write(ctx, http.MethodDelete, r.rowsURL(table, idFilter(id)), nil)
	if err != nil {
		return fmt.Errorf("failed to delete %s row %s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s row %s", store.ErrRowNotFound, table, id)
	}
	return nil
}

// FindIDByCaseNumber returns the id of the first row whose numerocaso is caseNumber.
func (r *REST) FindIDByCaseNumber(ctx context.Context, table, caseNumber string) (string, error) {
	q := url.Values{}
	q.Set("select", store.IDColumn)
	q.Set(store.CaseNumberColumn, "eq."+caseNumber)
	q.Set("limit", "1")

	req, err := r.newRequest(ctx, http.MethodGet, r.rowsURL(table, q), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", table, err)
	}
	rows, status, err := r.do(req)
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: table %s does not exist", store.ErrRowNotFound, table)
	}
	if err != nil {
		return "", fmt.Errorf("failed to find case %s in %s: %w", caseNumber, table, err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: case %s in %s", store.ErrRowNotFound, caseNumber, table)
	}
	return stringify(rows[0][store.IDColumn]), nil
}

func idFilter(id string) url.Values {
	return url.Values{store.IDColumn: []string{"eq." + id}}
}

func (r *REST) rowsURL(table string, q url.Values) string {
	u := r.baseURL + "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (r *REST) write(ctx context.Context, method, target string, payload map[string]string) ([]map[string]any, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := r.newRequest(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Prefer", "return=representation")
	rows, _, err := r.do(req)
	return rows, err
}

// do sends req and decodes a JSON array response. An empty body decodes to no rows.
func (r *REST) do(req *http.Request) ([]map[string]any, int, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, resp.StatusCode, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return rows, resp.StatusCode, nil
}
