package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
	"github.com/tphakala/safewatch/internal/threshold"
)

type failingThresholds struct{}

func (failingThresholds) ApplyOutcome(context.Context, string, model.Outcome) (model.AdaptiveThresholds, error) {
	return model.AdaptiveThresholds{}, errors.Newf("lost races").Category(errors.CategoryConcurrency).Build()
}

type outcomeCounter map[string]int

func (c outcomeCounter) RecordLearning(outcome string) { c[outcome]++ }

func TestRecordStoresAndUpdatesThresholds(t *testing.T) {
	repos := datastore.NewRepositories(datastore.NewMemoryStore())
	store := threshold.NewStore(repos.Thresholds, threshold.Config{})
	counts := outcomeCounter{}
	rec := NewRecorder(repos.Learning, store, counts)
	rec.now = func() time.Time { return time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC) }

	snap := model.SensorSnapshot{Motion: &model.MotionReading{Magnitude: 30}}
	got, err := rec.Record(context.Background(), Entry{
		UserID: "u1", EmergencyID: "e1", Snapshot: snap, Outcome: model.OutcomeFalsePositive,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "e1", got.EmergencyID)

	snap.Motion.Magnitude = 0
	stored, err := repos.Learning.Query(context.Background(), datastore.Query{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 30, stored[0].SensorSnapshot.Motion.Magnitude, 0)
	assert.Equal(t, model.OutcomeFalsePositive, stored[0].Outcome)

	th, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, th.MotionSensitivity, 1e-9)
	assert.Equal(t, 1, counts[string(model.OutcomeFalsePositive)])
}

func TestRecordKeepsSampleWhenThresholdsFail(t *testing.T) {
	repos := datastore.NewRepositories(datastore.NewMemoryStore())
	rec := NewRecorder(repos.Learning, failingThresholds{}, nil)

	got, err := rec.Record(context.Background(), Entry{UserID: "u1", Outcome: model.OutcomeMissedEmergency})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConcurrency))
	require.NotNil(t, got)

	stored, err := repos.Learning.Query(context.Background(), datastore.Query{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestRecordValidation(t *testing.T) {
	rec := NewRecorder(datastore.NewRepositories(datastore.NewMemoryStore()).Learning, nil, nil)

	_, err := rec.Record(context.Background(), Entry{Outcome: model.OutcomeTruePositive})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = rec.Record(context.Background(), Entry{UserID: "u", Outcome: "bogus"})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
