package api

import (
	"crypto/rand"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates an 8 character identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// statusFor maps an error category to an HTTP status code. Store outages
// and contention are retryable, so they get 503; everything unclassified
// is a 500.
func statusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err), errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsTransient(err),
		errors.IsCategory(err, errors.CategoryConcurrency),
		errors.IsCategory(err, errors.CategoryTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the human readable summary sent with a status code.
func messageFor(code int) string {
	switch code {
	case http.StatusServiceUnavailable:
		return "Service temporarily unavailable, retry later"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return http.StatusText(code)
	}
}

// handleError writes err as an ErrorResponse. Server side failures keep
// their details in the log only.
func (s *Server) handleError(c echo.Context, err error) error {
	code := statusFor(err)
	message := messageFor(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		}
		if he.Internal != nil {
			err = he.Internal
		} else {
			err = nil
		}
	}

	var resp *ErrorResponse
	if code >= http.StatusInternalServerError {
		resp = NewErrorResponse(nil, message, code)
	} else {
		resp = NewErrorResponse(err, message, code)
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("API error", fields...)
	} else {
		s.log.Debug("API request rejected", fields...)
	}

	return c.JSON(code, resp)
}

// httpErrorHandler routes errors that escape handlers, such as unknown
// routes or body limit rejections, through handleError.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if herr := s.handleError(c, err); herr != nil {
		s.log.Warn("failed to write error response", logger.Error(herr))
	}
}

func badRequest(msg string, err error) error {
	he := echo.NewHTTPError(http.StatusBadRequest, msg)
	if err != nil {
		he = he.SetInternal(err)
	}
	return he
}
