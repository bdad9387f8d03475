package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/model"
)

// REST reads tables from a hosted PostgREST-style backend, one GET per table.
type REST struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewREST returns a source for baseURL. A nil client uses http.DefaultClient.
func NewREST(baseURL, apiKey string, client *http.Client, logger *zap.Logger) *REST {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}
}

// FetchTables fetches tables one at a time in request order.
func (r *REST) FetchTables(ctx context.Context, names []string) ([]model.Table, error) {
	out := make([]model.Table, 0, len(names))
	for _, name := range names {
		t, err := r.fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *REST) tableURL(name string) string {
	return r.baseURL + "/rest/v1/" + url.PathEscape(name) + "?select=*"
}

func (r *REST) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	return req, nil
}

func (r *REST) fetch(ctx context.Context, name string) (model.Table, error) {
	table := model.Table{Name: name}

	req, err := r.newRequest(ctx, http.MethodGet, r.tableURL(name), nil)
	if err != nil {
		return table, fmt.Errorf("failed to create request for %s: %w", name, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return table, fmt.Errorf("failed to fetch table %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		r.logger.Warn("table not found on backend", zap.String("table", name))
		return table, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return table, fmt.Errorf("failed to fetch table %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return table, fmt.Errorf("failed to decode table %s: %w", name, err)
	}
	table.Data = recordsToData(records)
	r.logger.Debug("fetched table", zap.String("table", name), zap.Int("rows", len(records)))
	return table, nil
}

// recordsToData turns JSON objects into a header row (sorted union of keys)
// followed by aligned value rows. No records yields nil.
func recordsToData(records []map[string]any) [][]string {
	if len(records) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var header []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	data := make([][]string, 0, len(records)+1)
	data = append(data, header)
	for _, rec := range records {
		row := make([]string, len(header))
		for i, k := range header {
			row[i] = stringify(rec[k])
		}
		data = append(data, row)
	}
	return data
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
