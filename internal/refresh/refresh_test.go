package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/source"
	"github.com/senpa-rd/casewatch/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	tables  map[string]model.Table
	err     error
	release chan struct{}
}

func (f *fakeSource) FetchTables(ctx context.Context, names []string) ([]model.Table, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Table, len(names))
	for i, n := range names {
		t, ok := f.tables[n]
		if !ok {
			t = model.Table{Name: n}
		}
		out[i] = t
	}
	return out, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAudit) LogCaseAction(_ context.Context, _ string, action, _ string, _ map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

func sourceTables() map[string]model.Table {
	return map[string]model.Table{
		"notas_informativas": {
			Name: "notas_informativas",
			Data: [][]string{
				{"numerocaso", "provincia"},
				{"C1", "Azua"},
				{"C2", "Peravia"},
			},
		},
		"detenidos": {
			Name: "detenidos",
			Data: [][]string{
				{"numerocaso", "nombre"},
				{"C1", "Juan"},
			},
		},
	}
}

func TestNewRequiresSourceAndStore(t *testing.T) {
	_, err := New(Config{Store: casestore.NewStore(nil)})
	assert.Error(t, err)
	_, err = New(Config{Source: &fakeSource{}})
	assert.Error(t, err)

	p, err := New(Config{Source: &fakeSource{}, Store: casestore.NewStore(nil)})
	require.NoError(t, err)
	assert.Equal(t, DefaultTables, p.Tables())
}

func TestRunRebuildsStore(t *testing.T) {
	st := casestore.NewStore(nil)
	audit := &recordingAudit{}
	p, err := New(Config{Source: &fakeSource{tables: sourceTables()}, Store: st, Audit: audit})
	require.NoError(t, err)

	_, ok := p.Last()
	assert.False(t, ok)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, casestore.ModeRebuild, res.Mode)
	assert.Equal(t, 2, res.Tables)
	assert.Equal(t, 2, res.Cases)
	assert.False(t, res.Reused)
	assert.Equal(t, 2, st.Len())

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, res, last)
	assert.Equal(t, []string{store.ActionRefresh}, audit.actions)
}

func TestRunReuseKeepsLocalState(t *testing.T) {
	st := casestore.NewStore(nil)
	st.Put(&model.Case{CaseNumber: "LOCAL"})
	p, err := New(Config{Source: &fakeSource{tables: sourceTables()}, Store: st, Mode: casestore.ModeReuse})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Reused)
	assert.Equal(t, 1, st.Len())

	// Force always rebuilds from source.
	res, err = p.Force(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Reused)
	assert.Equal(t, 2, st.Len())
}

func TestRunFetchErrorKeepsStore(t *testing.T) {
	st := casestore.NewStore(nil)
	st.Put(&model.Case{CaseNumber: "C1"})
	p, err := New(Config{Source: &fakeSource{err: errors.New("backend down")}, Store: st})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Equal(t, 1, st.Len())
}

func TestConcurrentRunsAreCollapsed(t *testing.T) {
	src := &fakeSource{tables: sourceTables(), release: make(chan struct{})}
	p, err := New(Config{Source: src, Store: casestore.NewStore(nil)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Run(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return src.Calls() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, 1, src.Calls())
}

type countingSource struct {
	calls atomic.Int32
	next  source.Source
}

func (c *countingSource) FetchTables(ctx context.Context, names []string) ([]model.Table, error) {
	c.calls.Add(1)
	return c.next.FetchTables(ctx, names)
}

func TestForceInvalidatesCache(t *testing.T) {
	backend := &countingSource{next: &fakeSource{tables: sourceTables()}}
	cached := source.NewCached(backend, time.Hour)
	p, err := New(Config{Source: cached, Store: casestore.NewStore(nil)})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Run(ctx)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.calls.Load())

	_, err = p.Force(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), backend.calls.Load())
}

// gatedSource blocks its first fetch after reading the tables, standing in
// for a slow backend call that started before new rows arrived.
type gatedSource struct {
	mu      sync.Mutex
	tables  map[string]model.Table
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSource) FetchTables(_ context.Context, names []string) ([]model.Table, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	out := make([]model.Table, len(names))
	for i, n := range names {
		out[i] = g.tables[n]
		out[i].Name = n
	}
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return out, nil
}

func (g *gatedSource) set(t model.Table) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tables[t.Name] = t
}

func TestForceDuringRunSeesNewRows(t *testing.T) {
	src := &gatedSource{
		tables: map[string]model.Table{
			"notas_informativas": {Data: [][]string{{"numerocaso"}, {"C1"}}},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	st := casestore.NewStore(nil)
	p, err := New(Config{Source: source.NewCached(src, time.Hour), Store: st})
	require.NoError(t, err)
	ctx := context.Background()

	runDone := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx)
		runDone <- err
	}()
	<-src.entered

	src.set(model.Table{Name: "notas_informativas", Data: [][]string{{"numerocaso"}, {"C1"}, {"C2"}}})
	res, err := p.Force(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cases)
	assert.Equal(t, 2, st.Len())

	close(src.release)
	require.NoError(t, <-runDone)
	assert.Equal(t, 2, st.Len(), "the older run must not overwrite the forced one")

	res, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cases)
	assert.Equal(t, 2, st.Len())
}

type tickRunner struct {
	runs atomic.Int32
	err  error
}

func (r *tickRunner) Run(context.Context) (Result, error) {
	r.runs.Add(1)
	return Result{}, r.err
}

func TestAutoRefresherTicksUntilStopped(t *testing.T) {
	runner := &tickRunner{err: errors.New("transient")}
	a := NewAutoRefresher(runner, time.Millisecond, zap.NewNop())
	assert.Equal(t, MinInterval, a.Interval())
	a.interval = 5 * time.Millisecond

	a.Start(context.Background())
	a.Start(context.Background())
	require.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, time.Second, time.Millisecond)
	a.Stop()

	n := runner.runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, runner.runs.Load())
	a.Stop()
}

func TestAutoRefresherStopsWithContext(t *testing.T) {
	runner := &tickRunner{}
	a := NewAutoRefresher(runner, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	a.Start(ctx)
	cancel()
	a.Stop()
}
