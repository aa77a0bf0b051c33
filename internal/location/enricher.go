// Package location finds the freshest live position of a user.
package location

import (
	"context"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("location")
}

// Enricher reads LocationSamples.
type Enricher struct {
	samples *datastore.Repository[model.LocationSample]
}

// NewEnricher creates an Enricher.
func NewEnricher(samples *datastore.Repository[model.LocationSample]) *Enricher {
	return &Enricher{samples: samples}
}

// LatestActive returns the user's most recently updated active sample, or
// nil when there is none. Store order is not trusted; the newest sample is
// picked here. Lookup failures are logged and reported as nil.
func (e *Enricher) LatestActive(ctx context.Context, userID string) *model.LocationSample {
	samples, err := e.samples.Query(ctx, datastore.Query{
		UserID: userID,
		Status: string(model.LocationActive),
	})
	if err != nil {
		GetLogger().Warn("location lookup failed, continuing without location",
			logger.String("user_id", userID),
			logger.Error(err))
		return nil
	}

	var latest *model.LocationSample
	for i := range samples {
		s := &samples[i]
		if s.Status != model.LocationActive {
			continue
		}
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) ||
			(s.UpdatedAt.Equal(latest.UpdatedAt) && s.ID > latest.ID) {
			latest = s
		}
	}
	if latest == nil {
		return nil
	}
	out := *latest
	return &out
}
