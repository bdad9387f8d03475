package source

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/store"
)

type fakeReader struct {
	tables map[string]model.Table
	err    error
	calls  atomic.Int32
}

func (f *fakeReader) ReadTable(_ context.Context, name string) (model.Table, error) {
	f.calls.Add(1)
	if f.err != nil {
		return model.Table{}, f.err
	}
	if t, ok := f.tables[name]; ok {
		return t, nil
	}
	return model.Table{Name: name}, nil
}

func TestSQLFetchTablesKeepsOrder(t *testing.T) {
	reader := &fakeReader{tables: map[string]model.Table{
		"a": {Name: "a", Data: [][]string{{"numerocaso"}, {"C1"}}},
		"c": {Name: "c", Data: [][]string{{"numerocaso"}, {"C3"}}},
	}}
	tables, err := NewSQL(reader).FetchTables(context.Background(), []string{"c", "b", "a"})
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, "c", tables[0].Name)
	assert.Equal(t, "b", tables[1].Name)
	assert.Nil(t, tables[1].Data)
	assert.Equal(t, "a", tables[2].Name)
}

func TestSQLFetchTablesError(t *testing.T) {
	reader := &fakeReader{err: errors.New("boom")}
	_, err := NewSQL(reader).FetchTables(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read table a")
}

func TestSQLSourceAgainstStore(t *testing.T) {
	db, err := store.NewStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.AppendRows(ctx, "detenidos", []string{"numerocaso", "nombre"}, [][]string{{"C1", "Juan"}})
	require.NoError(t, err)

	tables, err := NewSQL(db).FetchTables(ctx, []string{"notas_informativas", "detenidos"})
	require.NoError(t, err)
	assert.Nil(t, tables[0].Data)
	require.Len(t, tables[1].Data, 2)
	assert.Equal(t, []string{"C1", "Juan"}, tables[1].Data[1][1:])
}

func newMockedREST(t *testing.T) (*REST, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	client := &http.Client{Transport: mock}
	return NewREST("https://backend.example.org/", "secret", client, nil), mock
}

func TestRESTFetchTables(t *testing.T) {
	src, mock := newMockedREST(t)

	mock.RegisterResponder(http.MethodGet, "https://backend.example.org/rest/v1/detenidos",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.Header.Get("apikey"))
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
			assert.Equal(t, "*", req.URL.Query().Get("select"))
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"numerocaso": "C1", "nombre": "Juan Perez", "edad": 34},
				{"numerocaso": "C1", "nombre": null, "activo": true}
			]`), nil
		})
	mock.RegisterResponder(http.MethodGet, "https://backend.example.org/rest/v1/vehiculos",
		httpmock.NewStringResponder(http.StatusOK, `[]`))
	mock.RegisterResponder(http.MethodGet, "https://backend.example.org/rest/v1/gone",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message":"relation does not exist"}`))

	tables, err := src.FetchTables(context.Background(), []string{"detenidos", "vehiculos", "gone"})
	require.NoError(t, err)
	require.Len(t, tables, 3)

	assert.Equal(t, [][]string{
		{"activo", "edad", "nombre", "numerocaso"},
		{"", "34", "Juan Perez", "C1"},
		{"true", "", "", "C1"},
	}, tables[0].Data)
	assert.Nil(t, tables[1].Data)
	assert.Equal(t, "gone", tables[2].Name)
	assert.Nil(t, tables[2].Data)
	assert.Equal(t, 3, mock.GetTotalCallCount())
}

func TestRESTFetchTablesServerError(t *testing.T) {
	src, mock := newMockedREST(t)
	mock.RegisterResponder(http.MethodGet, "https://backend.example.org/rest/v1/detenidos",
		httpmock.NewStringResponder(http.StatusInternalServerError, "upstream down"))

	_, err := src.FetchTables(context.Background(), []string{"detenidos"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestRESTFetchTablesBadJSON(t *testing.T) {
	src, mock := newMockedREST(t)
	mock.RegisterResponder(http.MethodGet, "https://backend.example.org/rest/v1/detenidos",
		httpmock.NewStringResponder(http.StatusOK, "{not json"))

	_, err := src.FetchTables(context.Background(), []string{"detenidos"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode table detenidos")
}

func TestCachedServesWithinTTL(t *testing.T) {
	reader := &fakeReader{tables: map[string]model.Table{
		"a": {Name: "a", Data: [][]string{{"numerocaso"}, {"C1"}}},
	}}
	cached := NewCached(NewSQL(reader), time.Minute)
	ctx := context.Background()

	first, err := cached.FetchTables(ctx, []string{"a", "b"})
	require.NoError(t, err)
	second, err := cached.FetchTables(ctx, []string{"b", "a"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), reader.calls.Load(), "second fetch is served from cache")
	assert.Equal(t, first[0], second[1])
	assert.Equal(t, "b", second[0].Name)

	cached.Invalidate()
	_, err = cached.FetchTables(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), reader.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	reader := &fakeReader{err: errors.New("boom")}
	cached := NewCached(NewSQL(reader), time.Minute)

	_, err := cached.FetchTables(context.Background(), []string{"a"})
	require.Error(t, err)

	reader.err = nil
	tables, err := cached.FetchTables(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "a", tables[0].Name)
}

func TestNew(t *testing.T) {
	reader := &fakeReader{}

	src, err := New(Config{Kind: "sql"}, reader, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, src)

	src, err = New(Config{Kind: "REST", URL: "https://x.example.org", CacheTTL: time.Minute}, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &Cached{}, src)
	assert.IsType(t, &REST{}, src.(*Cached).Unwrap())

	_, err = New(Config{Kind: "sql"}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Kind: "rest"}, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{Kind: "ftp"}, reader, nil)
	assert.Error(t, err)
}

type gateSource struct {
	entered chan struct{}
	release chan struct{}
	table   model.Table
}

func (g *gateSource) FetchTables(_ context.Context, names []string) ([]model.Table, error) {
	t := g.table
	close(g.entered)
	<-g.release
	return []model.Table{t}, nil
}

func TestCachedDropsFetchStartedBeforeInvalidate(t *testing.T) {
	old := model.Table{Name: "a", Data: [][]string{{"numerocaso"}, {"C1"}}}
	gate := &gateSource{entered: make(chan struct{}), release: make(chan struct{}), table: old}
	cached := NewCached(gate, time.Hour)

	done := make(chan []model.Table)
	go func() {
		tables, err := cached.FetchTables(context.Background(), []string{"a"})
		assert.NoError(t, err)
		done <- tables
	}()
	<-gate.entered
	cached.Invalidate()
	close(gate.release)

	tables := <-done
	assert.Equal(t, old, tables[0], "the caller still gets what it fetched")
	_, ok := cached.cache.Get("a")
	assert.False(t, ok, "a fetch that raced an invalidation is not cached")
}
