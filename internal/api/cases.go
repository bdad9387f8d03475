package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/senpa-rd/casewatch/internal/casestore"
	"github.com/senpa-rd/casewatch/internal/model"
)

// CaseList is the body of GET /cases.
type CaseList struct {
	Cases  []*model.Case `json:"cases"`
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// parseFilter reads a FilterSpec from query parameters. Multi-value
// dimensions accept repeated parameters and comma-separated lists.
func parseFilter(q url.Values) model.FilterSpec {
	search := q.Get("q")
	if search == "" {
		search = q.Get("searchText")
	}
	return model.FilterSpec{
		DateFrom:      q.Get("dateFrom"),
		DateTo:        q.Get("dateTo"),
		Provinces:     multi(q["provincia"]),
		Regions:       multi(q["region"]),
		ActivityTypes: multi(q["tipoActividad"]),
		TopicAreas:    multi(q["areaTematica"]),
		SearchText:    search,
	}
}

func multi(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// filtered returns the cases matching the request's filter parameters.
func (s *Server) filtered(c echo.Context) []*model.Case {
	spec := parseFilter(c.QueryParams())
	return s.deps.Filters.Apply(s.deps.Cases.List(), spec)
}

func actor(c echo.Context) string {
	if email := normalizeEmail(c.Request().Header.Get(UserHeader)); email != "" {
		return email
	}
	return "anonymous"
}

func (s *Server) listCases(c echo.Context) error {
	cases := s.filtered(c)
	total := len(cases)

	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		return s.handleError(c, err, "Invalid offset", http.StatusBadRequest)
	}
	limit, err := intParam(c, "limit", 0)
	if err != nil || limit < 0 {
		return s.handleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return c.JSON(http.StatusOK, CaseList{
		Cases:  cases[offset:end],
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) getCase(c echo.Context) error {
	found, err := s.deps.Cases.Get(c.Param("number"))
	if err != nil {
		return s.handleCaseError(c, err)
	}
	return c.JSON(http.StatusOK, found)
}

func (s *Server) createCase(c echo.Context) error {
	var in model.Case
	if err := c.Bind(&in); err != nil {
		return s.handleError(c, err, "Invalid request body", http.StatusBadRequest)
	}
	created, err := s.deps.Cases.Create(c.Request().Context(), &in, actor(c))
	if err != nil {
		return s.handleCaseError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateCase(c echo.Context) error {
	var patch casestore.Patch
	if err := c.Bind(&patch); err != nil {
		return s.handleError(c, err, "Invalid request body", http.StatusBadRequest)
	}
	if patch.IsEmpty() {
		return s.handleError(c, nil, "Nothing to update", http.StatusBadRequest)
	}
	updated, err := s.deps.Cases.Update(c.Request().Context(), c.Param("number"), patch, actor(c))
	if err != nil {
		return s.handleCaseError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteCase(c echo.Context) error {
	if err := s.deps.Cases.Delete(c.Request().Context(), c.Param("number"), actor(c)); err != nil {
		return s.handleCaseError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) caseAudit(c echo.Context) error {
	if s.deps.Audit == nil {
		return s.handleError(c, nil, "Audit log is not available", http.StatusNotImplemented)
	}
	limit, err := intParam(c, "limit", 50)
	if err != nil || limit <= 0 {
		return s.handleError(c, err, "Invalid limit", http.StatusBadRequest)
	}
	entries, err := s.deps.Audit.GetAuditEntries(c.Request().Context(), c.Param("number"), limit)
	if err != nil {
		return s.handleError(c, err, "Failed to read audit log", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, entries)
}
