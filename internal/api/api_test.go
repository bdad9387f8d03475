package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/model"
	"github.com/senpa-rd/casewatch/internal/refresh"
	"github.com/senpa-rd/casewatch/internal/telemetry"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Force(context.Context) (refresh.Result, error) {
	f.calls++
	if f.err != nil {
		return refresh.Result{}, f.err
	}
	return refresh.Result{Mode: casestore.ModeRebuild, Cases: 2, At: time.Now()}, nil
}

func (f *fakeRefresher) Last() (refresh.Result, bool) {
	return refresh.Result{}, f.calls > 0
}

func seedCases() []*model.Case {
	c1 := model.NewCase("C1")
	c1.Date = "2024-01-05"
	c1.Province = "Santiago"
	c1.Region = "Norte"
	c1.ActivityType = "Operativo"
	c1.TopicArea = "Recursos Forestales"
	c1.DetaineeCount = 2
	c1.Seizures = []string{"3 sacos de carbón"}

	c2 := model.NewCase("C2")
	c2.Date = "2024-01-06"
	c2.Province = "Azua"
	c2.Region = "Sur"
	c2.ActivityType = "Patrulla"
	c2.TopicArea = "Suelos y Aguas"
	return []*model.Case{c1, c2}
}

func newTestServer(t *testing.T, opts Options, deps Deps) *Server {
	t.Helper()
	st := casestore.NewStore(nil)
	for _, c := range seedCases() {
		st.Put(c)
	}
	if deps.Cases == nil {
		deps.Cases = casestore.NewService(casestore.ServiceConfig{Store: st})
	}
	return NewServer(opts, deps)
}

func do(s *Server, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListCasesWithFilters(t *testing.T) {
	s := newTestServer(t, Options{}, Deps{})

	rec := do(s, http.MethodGet, "/api/v1/cases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[CaseList](t, rec)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Cases, 2)
	assert.Equal(t, "C1", list.Cases[0].CaseNumber)

	rec = do(s, http.MethodGet, "/api/v1/cases?region=sur", nil)
	list = decode[CaseList](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "C2", list.Cases[0].CaseNumber)

	rec = do(s, http.MethodGet, "/api/v1/cases?provincia=Azua,Santiago&limit=1&offset=1", nil)
	list = decode[CaseList](t, rec)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Cases, 1)
	assert.Equal(t, "C2", list.Cases[0].CaseNumber)

	rec = do(s, http.MethodGet, "/api/v1/cases?dateFrom=2024-01-06", nil)
	list = decode[CaseList](t, rec)
	assert.Equal(t, 1, list.Total)

	rec = do(s, http.MethodGet, "/api/v1/cases?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaseCRUD(t *testing.T) {
	s := newTestServer(t, Options{}, Deps{})

	rec := do(s, http.MethodGet, "/api/v1/cases/C1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Santiago", decode[model.Case](t, rec).Province)

	rec = do(s, http.MethodGet, "/api/v1/cases/C9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodPost, "/api/v1/cases", map[string]any{
		"caseNumber": "C3",
		"date":       "2024-02-01",
		"province":   "Azua",
		"region":     "Sur",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "C3", decode[model.Case](t, rec).CaseNumber)

	rec = do(s, http.MethodPost, "/api/v1/cases", map[string]any{"caseNumber": "C3"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(s, http.MethodPost, "/api/v1/cases", map[string]any{"date": "yesterday"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.NotEmpty(t, errResp.Details)
	assert.Len(t, errResp.CorrelationID, 8)

	rec = do(s, http.MethodPut, "/api/v1/cases/C3", map[string]any{"province": "Peravia"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Peravia", decode[model.Case](t, rec).Province)

	rec = do(s, http.MethodPut, "/api/v1/cases/C3", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s, http.MethodPut, "/api/v1/cases/C9", map[string]any{"province": "X"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodDelete, "/api/v1/cases/C3", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(s, http.MethodDelete, "/api/v1/cases/C3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCaseAuditWithoutReader(t *testing.T) {
	s := newTestServer(t, Options{}, Deps{})
	rec := do(s, http.MethodGet, "/api/v1/cases/C1/audit", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestEmailGate(t *testing.T) {
	s := newTestServer(t, Options{AllowedEmails: []string{" Ana@Example.org "}}, Deps{})

	rec := do(s, http.MethodGet, "/api/v1/cases", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/cases", nil, UserHeader, "eve@example.org")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/cases", nil, UserHeader, "ana@example.org")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not gated")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, Options{RPS: 1, Burst: 1}, Deps{})

	rec := do(s, http.MethodGet, "/api/v1/cases", nil, UserHeader, "ana@example.org")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(s, http.MethodGet, "/api/v1/cases", nil, UserHeader, "ana@example.org")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Limits are per user.
	rec = do(s, http.MethodGet, "/api/v1/cases", nil, UserHeader, "luis@example.org")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestViews(t *testing.T) {
	s := newTestServer(t, Options{}, Deps{})

	rec := do(s, http.MethodGet, "/api/v1/metrics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[analytics.Metrics](t, rec)
	assert.Equal(t, 2, m.TotalCases)
	assert.Equal(t, 2, m.Detainees)

	rec = do(s, http.MethodGet, "/api/v1/metrics/summary?region=Norte", nil)
	assert.Equal(t, 1, decode[analytics.Metrics](t, rec).TotalCases)

	rec = do(s, http.MethodGet, "/api/v1/views/regions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	regions := decode[[]analytics.AreaBreakdown](t, rec)
	assert.Len(t, regions, 2)

	for _, view := range []string{"provinces", "seizures", "nationalities", "vehicles", "weekly", "topics"} {
		rec = do(s, http.MethodGet, "/api/v1/views/"+view, nil)
		assert.Equal(t, http.StatusOK, rec.Code, view)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	s := newTestServer(t, Options{}, Deps{})
	rec := do(s, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	r := &fakeRefresher{}
	s = newTestServer(t, Options{}, Deps{Refresher: r})
	rec = do(s, http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, r.calls)

	rec = do(s, http.MethodGet, "/api/v1/health", nil)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Contains(t, health, "last_refresh")

	r.err = errors.New("upstream down")
	rec = do(s, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestExports(t *testing.T) {
	metrics := telemetry.New()
	s := newTestServer(t, Options{}, Deps{Metrics: metrics})

	rec := do(s, http.MethodGet, "/api/v1/export/cases.csv?region=Sur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "casos.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\r\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"C2"`)

	rec = do(s, http.MethodGet, "/api/v1/export/metrics.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Indicador")

	rec = do(s, http.MethodGet, "/api/v1/export/charts/regions.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(s, http.MethodGet, "/api/v1/export/charts/pie.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `casewatch_exports_total{format="csv"} 2`)
	assert.Contains(t, body, `casewatch_exports_total{format="png"} 1`)
	assert.Contains(t, body, `path="/api/v1/export/charts/:chart"`)
}
