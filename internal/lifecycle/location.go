package lifecycle

import (
	"context"
	"math"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

const locationWriteAttempts = 3

// LocationUpdate is a position reported by the client while tracking.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

func (u LocationUpdate) validate() error {
	if math.IsNaN(u.Latitude) || math.IsNaN(u.Longitude) ||
		u.Latitude < -90 || u.Latitude > 90 || u.Longitude < -180 || u.Longitude > 180 {
		return errors.Newf("coordinates out of range").
			Component("lifecycle").
			Category(errors.CategoryValidation).
			Context("latitude", u.Latitude).
			Context("longitude", u.Longitude).
			Build()
	}
	return nil
}

// writeLocation overwrites the session's live sample, creating it on first
// use. A resolved sample is never changed again.
func (s *Service) writeLocation(ctx context.Context, sessionID, userID, severity string, u LocationUpdate) (*model.LocationSample, error) {
	if err := u.validate(); err != nil {
		return nil, err
	}
	repo := s.repos.Locations

	var lastErr error
	for range locationWriteAttempts {
		now := s.clock.Now().UTC()
		current, err := repo.Get(ctx, sessionID)
		if errors.IsNotFound(err) {
			sample := &model.LocationSample{
				ID:        sessionID,
				UserID:    userID,
				Latitude:  u.Latitude,
				Longitude: u.Longitude,
				Accuracy:  u.Accuracy,
				Severity:  severity,
				Status:    model.LocationActive,
				UpdatedAt: now,
			}
			if err := repo.Create(ctx, sample); err != nil {
				if errors.IsConflict(err) {
					lastErr = err
					continue
				}
				return nil, err
			}
			return sample, nil
		}
		if err != nil {
			return nil, err
		}
		if current.Status == model.LocationResolved {
			return nil, errors.Newf("location tracking for session %s has ended", sessionID).
				Component("lifecycle").
				Category(errors.CategoryState).
				Context("session_id", sessionID).
				Build()
		}

		version, err := repo.UpdateIf(ctx, sessionID, current.Version, datastore.Patch{
			"latitude":  u.Latitude,
			"longitude": u.Longitude,
			"accuracy":  u.Accuracy,
			"severity":  severity,
			"updatedAt": now,
		})
		if err == nil {
			current.Latitude, current.Longitude, current.Accuracy = u.Latitude, u.Longitude, u.Accuracy
			current.Severity, current.UpdatedAt, current.Version = severity, now, version
			return current, nil
		}
		if !errors.IsConflict(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// resolveLocation freezes the session's sample, if it has one.
func (s *Service) resolveLocation(ctx context.Context, sessionID string) error {
	repo := s.repos.Locations
	var lastErr error
	for range locationWriteAttempts {
		current, err := repo.Get(ctx, sessionID)
		if errors.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Status == model.LocationResolved {
			return nil
		}
		_, err = repo.UpdateIf(ctx, sessionID, current.Version, datastore.Patch{
			"status":    model.LocationResolved,
			"updatedAt": s.clock.Now().UTC(),
		})
		if err == nil || !errors.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
