package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Kind      vecerr.Kind `json:"kind"`
	Field     string      `json:"field,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// statusFor maps an error kind to a status code.
func statusFor(kind vecerr.Kind) int {
	switch kind {
	case vecerr.KindValidation, vecerr.KindConfiguration, vecerr.KindDimensionMismatch:
		return http.StatusBadRequest
	case vecerr.KindMissingID:
		return http.StatusNotFound
	case vecerr.KindDuplicateID:
		return http.StatusConflict
	case vecerr.KindSerialization:
		return http.StatusUnprocessableEntity
	case vecerr.KindConnection:
		return http.StatusServiceUnavailable
	case vecerr.KindDatastore:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorHandler writes index errors as ErrorResponse and leaves echo's own
// errors (404 route, 413 body limit, ...) with their status.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      vecerr.KindOf(err),
		RequestID: logging.RequestIDFromContext(c.Request().Context()),
	}
	status := statusFor(resp.Kind)

	var he *echo.HTTPError
	if errors.As(err, &he) && resp.Kind == vecerr.KindUnknown {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			resp.Error = msg
		}
	}
	var fe *vecerr.FieldError
	if errors.As(err, &fe) {
		resp.Field = fe.Field
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()),
			zap.String("method", c.Request().Method),
			zap.String("route", c.Path()),
			zap.String("kind", string(resp.Kind)),
			zap.Error(err),
		)...)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, resp)
	}
	if err != nil {
		s.logger.Warn("writing error response", zap.Error(err))
	}
}
