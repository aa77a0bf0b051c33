package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/safewatch/internal/lifecycle"
	"github.com/tphakala/safewatch/internal/model"
)

// StartSessionRequest opens an SOS session.
type StartSessionRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// SOSResponse is returned by a manual trigger.
type SOSResponse struct {
	Session   lifecycle.SessionView  `json:"session"`
	Emergency *model.EmergencyRecord `json:"emergency"`
}

func (s *Server) startSession(c echo.Context) error {
	var req StartSessionRequest
	if err := decodeBody(c, &req); err != nil {
		return s.handleError(c, err)
	}
	view, err := s.ctl.Start(c.Request().Context(), req.UserID, req.UserName)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (s *Server) getSession(c echo.Context) error {
	view, err := s.ctl.Get(c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// observeSession scores one set of readings. The response carries the new
// state, which is CountdownPending when a countdown has started.
func (s *Server) observeSession(c echo.Context) error {
	var readings model.Readings
	if err := decodeBody(c, &readings); err != nil {
		return s.handleError(c, err)
	}
	view, err := s.ctl.Observe(c.Request().Context(), c.Param("id"), readings)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) cancelSession(c echo.Context) error {
	var req CancelRequest
	if err := decodeOptionalBody(c, &req); err != nil {
		return s.handleError(c, err)
	}
	view, err := s.ctl.Cancel(c.Request().Context(), c.Param("id"), req.Reason, req.SensorData)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) triggerSOS(c echo.Context) error {
	view, rec, err := s.ctl.TriggerManual(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusCreated, SOSResponse{Session: view, Emergency: rec})
}

func (s *Server) updateLocation(c echo.Context) error {
	var u lifecycle.LocationUpdate
	if err := decodeBody(c, &u); err != nil {
		return s.handleError(c, err)
	}
	sample, err := s.ctl.UpdateLocation(c.Request().Context(), c.Param("id"), u)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(http.StatusOK, sample)
}

func (s *Server) stopSession(c echo.Context) error {
	if err := s.ctl.Stop(c.Request().Context(), c.Param("id")); err != nil {
		return s.handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
