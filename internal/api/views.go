package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/senpa-rd/casewatch/internal/analytics"
	"github.com/senpa-rd/casewatch/internal/export"
)

func (s *Server) metricsSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.Summarize(s.filtered(c)))
}

func (s *Server) viewRegions(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.ByRegion(s.filtered(c)))
}

func (s *Server) viewProvinces(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.ByProvince(s.filtered(c)))
}

func (s *Server) viewSeizures(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.SeizureTypes(s.filtered(c), s.deps.Heuristics))
}

func (s *Server) viewNationalities(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.Nationalities(s.filtered(c)))
}

func (s *Server) viewVehicles(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.VehicleTypes(s.filtered(c)))
}

func (s *Server) viewWeekly(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.Weekly(s.filtered(c), s.deps.Heuristics, s.deps.Filters.Dates()))
}

func (s *Server) viewTopics(c echo.Context) error {
	return c.JSON(http.StatusOK, analytics.TopicSummary(s.filtered(c), s.deps.Heuristics))
}

func (s *Server) refresh(c echo.Context) error {
	if s.deps.Refresher == nil {
		return s.handleError(c, nil, "Refresh is not configured", http.StatusNotImplemented)
	}
	res, err := s.deps.Refresher.Force(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "Refresh failed", http.StatusBadGateway)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) exportCases(c echo.Context) error {
	var buf bytes.Buffer
	if err := export.WriteCasesCSV(&buf, s.filtered(c)); err != nil {
		return s.handleError(c, err, "Failed to export cases", http.StatusInternalServerError)
	}
	s.deps.Metrics.RecordExport("csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="casos.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) exportMetrics(c echo.Context) error {
	var buf bytes.Buffer
	if err := export.WriteMetricsCSV(&buf, analytics.Summarize(s.filtered(c))); err != nil {
		return s.handleError(c, err, "Failed to export metrics", http.StatusInternalServerError)
	}
	s.deps.Metrics.RecordExport("csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="metricas.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) exportChart(c echo.Context) error {
	kind, err := export.ParseChartKind(strings.TrimSuffix(c.Param("chart"), ".png"))
	if err != nil {
		return s.handleError(c, err, "Unknown chart", http.StatusNotFound)
	}
	var buf bytes.Buffer
	if err := export.RenderChart(&buf, kind, s.filtered(c), s.deps.Heuristics, s.deps.Filters.Dates()); err != nil {
		return s.handleError(c, err, "Failed to render chart", http.StatusInternalServerError)
	}
	s.deps.Metrics.RecordExport("png")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

// health reports component status. It is never gated or rate limited.
func (s *Server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := map[string]string{}
	if s.deps.DB != nil {
		checks["database"] = "ok"
		if err := s.deps.DB.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			status = "degraded"
		}
	}
	if s.deps.Bus != nil {
		checks["bus"] = "ok"
		if err := s.deps.Bus.HealthCheck(ctx); err != nil {
			checks["bus"] = err.Error()
			status = "degraded"
		}
	}

	resp := map[string]any{
		"status":    status,
		"cases":     s.deps.Cases.Store().Len(),
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if s.deps.Refresher != nil {
		if last, ok := s.deps.Refresher.Last(); ok {
			resp["last_refresh"] = last
		}
	}
	return c.JSON(http.StatusOK, resp)
}
