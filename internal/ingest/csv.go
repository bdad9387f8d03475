// Package ingest loads CSV exports into source tables, once or by watching a folder.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

// TableWriter is the part of the database layer the importer writes through.
type TableWriter interface {
	AppendRows(ctx context.Context, name string, header []string, rows [][]string) (int, error)
	DropTable(ctx context.Context, name string) error
}

// Options controls importer behavior.
type Options struct {
	Dir      string
	Patterns []string // e.g. []string{"*.csv"}
	// Replace drops the target table before loading so a re-imported file
	// does not duplicate rows.
	Replace bool
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
}

// Result reports one imported file.
type Result struct {
	File  string `json:"file"`
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// Importer loads <table>.csv files into the table named after the file.
type Importer struct {
	db   TableWriter
	opts Options
}

// NewImporter constructs an importer.
func NewImporter(db TableWriter, opts Options) *Importer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.csv"}
	}
	opts.Logger = opts.Logger.Named("ingest")
	return &Importer{db: db, opts: opts}
}

// Matches reports whether a file name matches the configured patterns.
func (im *Importer) Matches(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	for _, pat := range im.opts.Patterns {
		p := strings.TrimSpace(strings.ToLower(pat))
		if ok, _ := filepath.Match(p, lower); ok {
			return true
		}
	}
	return false
}

// TableName derives the table name from a file path: "Detenidos 2024.csv" -> "detenidos_2024".
func TableName(path string) string {
	base := filepath.Base(path)
	return store.SanitizeIdentifier(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ImportDir imports every matching file in the configured directory, in
// name order. A failing file is logged and skipped; the error is returned
// only when the directory itself cannot be read.
func (im *Importer) ImportDir(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(im.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dir %s: %w", im.opts.Dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var results []Result
	for _, e := range entries {
		if e.IsDir() || !im.Matches(e.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := im.ImportFile(ctx, filepath.Join(im.opts.Dir, e.Name()))
		if err != nil {
			im.opts.Logger.Warn("failed to import file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// ImportFile loads one CSV file. The first record is the header.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	res := Result{File: path, Table: TableName(path)}
	if res.Table == "" {
		return res, fmt.Errorf("cannot derive a table name from %s", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return res, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	header, rows, err := ReadCSV(f)
	if err != nil {
		return res, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(header) == 0 {
		return res, fmt.Errorf("%s has no header row", filepath.Base(path))
	}

	if im.opts.Replace {
		if err := im.db.DropTable(ctx, res.Table); err != nil {
			return res, err
		}
	}
	n, err := im.db.AppendRows(ctx, res.Table, header, rows)
	if err != nil {
		return res, err
	}
	res.Rows = n
	im.opts.Metrics.RecordImport(res.Table, n)
	im.opts.Logger.Info("imported file",
		zap.String("file", filepath.Base(path)),
		zap.String("table", res.Table),
		zap.Int("rows", n))
	return res, nil
}

// ReadCSV parses r into sanitized, de-duplicated column names and value
// rows. Comma and semicolon delimiters are detected from the header line.
// Blank rows are dropped.
func ReadCSV(r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	sample, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, err
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.Comma = detectDelimiter(sample)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header := Columns(records[0])
	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func detectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// Columns sanitizes raw header cells into identifiers. Empty names become
// col_N and repeats get a numeric suffix.
func Columns(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))
	for i, h := range raw {
		name := store.SanitizeIdentifier(h)
		if name == "" {
			name = "col_" + strconv.Itoa(i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
