package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/senpa-rd/casewatch/internal/casestore"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error         string   `json:"error"`
	Message       string   `json:"message"`
	Code          int      `json:"code"`
	Details       []string `json:"details,omitempty"`
	CorrelationID string   `json:"correlation_id"`
}

// handleError logs err and writes an ErrorResponse.
func (s *Server) handleError(c echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.New().String()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}
	var verr *casestore.ValidationError
	if errors.As(err, &verr) {
		resp.Details = verr.Messages
	}

	level := s.logger.Warn
	if code >= http.StatusInternalServerError {
		level = s.logger.Error
	}
	level("api error",
		zap.String("correlation_id", resp.CorrelationID),
		zap.String("message", message),
		zap.Int("code", code),
		zap.String("path", c.Request().URL.Path),
		zap.String("method", c.Request().Method),
		zap.Error(err))

	return c.JSON(code, resp)
}

// handleCaseError maps case service errors onto HTTP status codes.
func (s *Server) handleCaseError(c echo.Context, err error) error {
	var verr *casestore.ValidationError
	switch {
	case errors.As(err, &verr):
		return s.handleError(c, err, "Invalid case", http.StatusBadRequest)
	case errors.Is(err, casestore.ErrCaseNotFound):
		return s.handleError(c, err, "Case not found", http.StatusNotFound)
	case errors.Is(err, casestore.ErrCaseExists):
		return s.handleError(c, err, "Case already exists", http.StatusConflict)
	default:
		return s.handleError(c, err, "Failed to save case", http.StatusInternalServerError)
	}
}
