package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/safewatch/internal/lifecycle"
	"github.com/tphakala/safewatch/internal/model"
)

// reportEnvelope holds the report fields that sit next to the readings.
type reportEnvelope struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
	Manual    bool   `json:"manual"`
}

// CancelRequest is the body of an emergency or session cancel.
type CancelRequest struct {
	Reason     string                `json:"reason"`
	SensorData *model.SensorSnapshot `json:"sensorData,omitempty"`
}

// ResolveRequest is the body of an emergency resolve.
type ResolveRequest struct {
	Notes string `json:"notes"`
}

// reportEmergency handles POST /api/v1/emergencies. The record is durable
// when this returns 201; notification happens afterwards.
func (s *Server) reportEmergency(c echo.Context) error {
	var env reportEnvelope
	var readings model.Readings
	if err := decodeBody(c, &env, &readings); err != nil {
		return s.handleError(c, err)
	}

	res, err := s.svc.ReportEmergency(c.Request().Context(), lifecycle.ReportRequest{
		UserID:    env.UserID,
		UserName:  env.UserName,
		SessionID: env.SessionID,
		Readings:  readings,
		Manual:    env.Manual,
	})
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) getEmergency(c echo.Context) error {
	rec, err := s.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) cancelEmergency(c echo.Context) error {
	var req CancelRequest
	if err := decodeOptionalBody(c, &req); err != nil {
		return s.handleError(c, err)
	}
	rec, err := s.svc.CancelEmergency(c.Request().Context(), c.Param("id"), req.Reason, req.SensorData)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) resolveEmergency(c echo.Context) error {
	var req ResolveRequest
	if err := decodeOptionalBody(c, &req); err != nil {
		return s.handleError(c, err)
	}
	rec, err := s.svc.ResolveEmergency(c.Request().Context(), c.Param("id"), req.Notes)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// recordFeedback handles POST /api/v1/feedback.
func (s *Server) recordFeedback(c echo.Context) error {
	var req lifecycle.FeedbackRequest
	if err := decodeBody(c, &req); err != nil {
		return s.handleError(c, err)
	}
	rec, err := s.svc.RecordFeedback(c.Request().Context(), req)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}
