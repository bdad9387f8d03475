package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/senpa-rd/casewatch/internal/store"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "detenidos_2024", TableName("/data/Detenidos 2024.csv"))
	assert.Equal(t, "incautaciones", TableName("Incautaciones.CSV"))
	assert.Equal(t, "", TableName("---.csv"))
}

func TestColumns(t *testing.T) {
	got := Columns([]string{"Número Caso", "Nombre", "", "nombre", "Nombre"})
	assert.Equal(t, []string{"numero_caso", "nombre", "col_3", "nombre_2", "nombre_3"}, got)
}

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFNumeroCaso;Tipo;Cantidad\nC1;\"Machetes; grandes\";2\n;;\nC2;Redes\n"
	header, rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"numerocaso", "tipo", "cantidad"}, header)
	assert.Equal(t, [][]string{
		{"C1", "Machetes; grandes", "2"},
		{"C2", "Redes"},
	}, rows)

	header, rows, err = ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, header)
	assert.Nil(t, rows)
}

func newTestDB(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestImportFileIntoStore(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Detenidos.csv", "numerocaso,nombre,nacionalidad\nC1,Juan,Dominicana\nC1,Jean,Haitiana\n")

	db := newTestDB(t)
	metrics := telemetry.New()
	im := NewImporter(db, Options{Dir: dir, Replace: true, Metrics: metrics})
	ctx := context.Background()

	res, err := im.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "detenidos", res.Table)
	assert.Equal(t, 2, res.Rows)

	// Replace keeps a re-import from duplicating rows.
	_, err = im.ImportFile(ctx, path)
	require.NoError(t, err)

	table, err := db.ReadTable(ctx, "detenidos")
	require.NoError(t, err)
	assert.Len(t, table.Rows(), 2)
	assert.Contains(t, table.Header(), "nacionalidad")
}

func TestImportFileAppendsWithoutReplace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "vehiculos.csv", "numerocaso,tipo\nC1,Camión\n")
	db := newTestDB(t)
	im := NewImporter(db, Options{Dir: dir})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := im.ImportFile(ctx, path)
		require.NoError(t, err)
	}
	table, err := db.ReadTable(ctx, "vehiculos")
	require.NoError(t, err)
	assert.Len(t, table.Rows(), 2)
}

func TestImportDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_detenidos.csv", "numerocaso,nombre\nC1,Juan\n")
	writeFile(t, dir, "a_vacio.csv", "")
	writeFile(t, dir, "notas.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	im := NewImporter(newTestDB(t), Options{Dir: dir})
	results, err := im.ImportDir(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b_detenidos", results[0].Table)

	_, err = NewImporter(newTestDB(t), Options{Dir: filepath.Join(dir, "missing")}).ImportDir(context.Background())
	assert.Error(t, err)
}

type memWriter struct {
	mu     sync.Mutex
	tables map[string]int
}

func (m *memWriter) AppendRows(_ context.Context, name string, _ []string, rows [][]string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] += len(rows)
	return len(rows), nil
}

func (m *memWriter) DropTable(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, name)
	return nil
}

func TestFolderWatcherImportsNewFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	writeFile(t, dir, "detenidos.csv", "numerocaso,nombre\nC1,Juan\n")

	writer := &memWriter{tables: map[string]int{}}
	im := NewImporter(writer, Options{Dir: dir, Replace: true})

	var mu sync.Mutex
	var imported []string
	fw := NewFolderWatcher(im, func(_ context.Context, res Result) {
		mu.Lock()
		imported = append(imported, res.Table)
		mu.Unlock()
	})
	fw.settle = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	seen := func(table string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, t := range imported {
				if t == table {
					return true
				}
			}
			return false
		}
	}
	require.Eventually(t, seen("detenidos"), 2*time.Second, 10*time.Millisecond)

	writeFile(t, dir, "vehiculos.csv", "numerocaso,tipo\nC1,Camión\nC2,Moto\n")
	require.Eventually(t, seen("vehiculos"), 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.Equal(t, 1, writer.tables["detenidos"])
	assert.Equal(t, 2, writer.tables["vehiculos"])
}
