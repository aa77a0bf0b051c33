package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/events"
	"github.com/tphakala/safewatch/internal/model"
)

func TestObserveFollowsClassification(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()

	view, err := h.ctl.Start(ctx, "user-1", "Alex")
	require.NoError(t, err)
	assert.Equal(t, StateMonitoring, view.State)

	view, err = h.ctl.Observe(ctx, view.ID, suspiciousReadings())
	require.NoError(t, err)
	assert.Equal(t, StateSuspicious, view.State)
	require.NotNil(t, view.Breakdown)
	assert.InDelta(t, 50, view.Breakdown.TotalScore, 1e-9)

	view, err = h.ctl.Observe(ctx, view.ID, safeReadings())
	require.NoError(t, err)
	assert.Equal(t, StateMonitoring, view.State)
	assert.Equal(t, model.ClassificationSafe, view.Classification)

	_, err = h.ctl.Observe(ctx, "missing", safeReadings())
	assert.True(t, errors.IsNotFound(err))
}

func TestCountdownCancelRecordsFalsePositiveOnly(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	ctx := context.Background()
	view := startCountdown(t, h)
	require.NotNil(t, view.CountdownEndsAt)
	assert.True(t, night.Add(DefaultCountdown).Equal(*view.CountdownEndsAt))

	clock.Advance(2 * time.Second)
	view, err := h.ctl.Cancel(ctx, view.ID, "fell asleep", nil)
	require.NoError(t, err)
	assert.Equal(t, StateMonitoring, view.State)
	assert.Zero(t, clock.Pending())

	clock.Advance(time.Minute)

	assert.Empty(t, h.emergencies(t))
	lrs := h.learningRecords(t)
	require.Len(t, lrs, 1)
	assert.Equal(t, model.OutcomeFalsePositive, lrs[0].Outcome)
	assert.Equal(t, view.ID, lrs[0].SessionID)
	assert.Empty(t, lrs[0].EmergencyID)
	require.NotNil(t, lrs[0].SensorSnapshot.Motion)
	assert.InDelta(t, 20.5, lrs[0].SensorSnapshot.Motion.Magnitude, 1e-9)

	th, err := h.thresholds.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, th.MotionSensitivity, 1e-9)

	assert.Equal(t, []events.Kind{events.KindCountdownStarted, events.KindCountdownCancelled}, h.pub.kinds())
}

func TestCountdownCancelUsesSuppliedSnapshot(t *testing.T) {
	h := newHarness(t, newFakeClock())
	view := startCountdown(t, h)

	snap := &model.SensorSnapshot{Motion: &model.MotionReading{Magnitude: 3}}
	_, err := h.ctl.Cancel(context.Background(), view.ID, "", snap)
	require.NoError(t, err)

	lrs := h.learningRecords(t)
	require.Len(t, lrs, 1)
	assert.InDelta(t, 3, lrs[0].SensorSnapshot.Motion.Magnitude, 1e-9)
}

func TestCountdownExpiryReportsEmergency(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	view := startCountdown(t, h)

	// Readings during the countdown do not restart it.
	_, err := h.ctl.Observe(context.Background(), view.ID, safeReadings())
	require.NoError(t, err)

	clock.Advance(DefaultCountdown)

	view, err = h.ctl.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReported, view.State)

	recs := h.emergencies(t)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, view.EmergencyID, rec.ID)
	assert.Equal(t, model.RecordActive, rec.Status)
	assert.Equal(t, view.ID, rec.SessionID)
	assert.Equal(t, "Alex", rec.UserName)
	assert.False(t, rec.Manual)
	assert.InDelta(t, 77, rec.Confidence, 1e-9)
	assert.InDelta(t, 100, rec.Breakdown.SensorScore, 1e-9)
	require.NotNil(t, rec.Location)
	assert.InDelta(t, 60.2, rec.Location.Latitude, 1e-9)
	assert.True(t, night.Add(DefaultCountdown).Equal(rec.CreatedAt))

	assert.Empty(t, h.learningRecords(t))
	assert.Equal(t, []events.Kind{events.KindCountdownStarted, events.KindEmergencyReported}, h.pub.kinds())
}

func TestCancelRegisteredBeforeExpiryWins(t *testing.T) {
	clock := &manualClock{now: night}
	h := newHarness(t, clock)
	view := startCountdown(t, h)

	_, err := h.ctl.Cancel(context.Background(), view.ID, "", nil)
	require.NoError(t, err)

	// The timer was already firing when cancel took the lock.
	clock.fire()

	view, err = h.ctl.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StateMonitoring, view.State)
	assert.Empty(t, h.emergencies(t))
	assert.Len(t, h.learningRecords(t), 1)
}

func TestExpiryBeforeCancelReportsThenCancelsRecord(t *testing.T) {
	clock := &manualClock{now: night}
	h := newHarness(t, clock)
	view := startCountdown(t, h)

	clock.fire()
	view, err := h.ctl.Cancel(context.Background(), view.ID, "false alarm", nil)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, view.State)

	recs := h.emergencies(t)
	require.Len(t, recs, 1)
	assert.Equal(t, model.RecordCancelled, recs[0].Status)
	assert.Equal(t, "false alarm", recs[0].CancelReason)

	lrs := h.learningRecords(t)
	require.Len(t, lrs, 1)
	assert.Equal(t, recs[0].ID, lrs[0].EmergencyID)
}

// Whatever the interleaving, a countdown never yields both a countdown
// cancellation and a report.
func TestCancelAndExpiryRace(t *testing.T) {
	for range 50 {
		clock := &manualClock{now: night}
		h := newHarness(t, clock)
		view := startCountdown(t, h)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.fire()
		}()
		go func() {
			defer wg.Done()
			_, _ = h.ctl.Cancel(context.Background(), view.ID, "", nil)
		}()
		wg.Wait()

		recs := h.emergencies(t)
		lrs := h.learningRecords(t)
		require.Len(t, lrs, 1)
		switch len(recs) {
		case 0:
			assert.Empty(t, lrs[0].EmergencyID)
		case 1:
			assert.Equal(t, recs[0].ID, lrs[0].EmergencyID)
			assert.Equal(t, model.RecordCancelled, recs[0].Status)
		default:
			t.Fatalf("got %d records", len(recs))
		}
	}
}

func TestManualTriggerFromMonitoring(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()
	view, err := h.ctl.Start(ctx, "user-1", "")
	require.NoError(t, err)

	view, rec, err := h.ctl.TriggerManual(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReported, view.State)
	assert.True(t, rec.Manual)
	assert.Equal(t, model.ScoreBreakdown{TotalScore: 100, Manual: true}, rec.Breakdown)
	assert.InDelta(t, 100, rec.Confidence, 0)

	_, _, err = h.ctl.TriggerManual(ctx, view.ID)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Len(t, h.emergencies(t), 1)
}

func TestManualTriggerDuringCountdownVoidsTimer(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	view := startCountdown(t, h)

	_, rec, err := h.ctl.TriggerManual(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, rec.Breakdown.Manual)

	clock.Advance(time.Minute)
	assert.Len(t, h.emergencies(t), 1)
	assert.Empty(t, h.learningRecords(t))
}

func TestServiceCloseFinalizesSession(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	ctx := context.Background()
	view := startCountdown(t, h)

	_, err := h.ctl.UpdateLocation(ctx, view.ID, LocationUpdate{Latitude: 60.2, Longitude: 24.9, Accuracy: 12})
	require.NoError(t, err)

	clock.Advance(DefaultCountdown)
	view, err = h.ctl.Get(view.ID)
	require.NoError(t, err)

	_, err = h.svc.ResolveEmergency(ctx, view.EmergencyID, "picked up by ambulance")
	require.NoError(t, err)

	view, err = h.ctl.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, StateResolved, view.State)

	sample, err := h.repos.Locations.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LocationResolved, sample.Status)

	_, err = h.ctl.UpdateLocation(ctx, view.ID, LocationUpdate{Latitude: 61, Longitude: 25})
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	sample, err = h.repos.Locations.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.InDelta(t, 60.2, sample.Latitude, 1e-9)
}

func TestUpdateLocationOverwritesSample(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()
	view, err := h.ctl.Start(ctx, "user-1", "")
	require.NoError(t, err)

	first, err := h.ctl.UpdateLocation(ctx, view.ID, LocationUpdate{Latitude: 1, Longitude: 2, Accuracy: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	second, err := h.ctl.UpdateLocation(ctx, view.ID, LocationUpdate{Latitude: 3, Longitude: 4, Accuracy: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	samples, err := h.repos.Locations.Query(ctx, datastore.Query{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.InDelta(t, 3, samples[0].Latitude, 1e-9)
	assert.Equal(t, model.LocationActive, samples[0].Status)

	_, err = h.ctl.UpdateLocation(ctx, view.ID, LocationUpdate{Latitude: 95, Longitude: 4})
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestStopDiscardsCountdown(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	view := startCountdown(t, h)

	require.NoError(t, h.ctl.Stop(context.Background(), view.ID))
	clock.Advance(time.Minute)

	assert.Empty(t, h.emergencies(t))
	_, err := h.ctl.Get(view.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, h.ctl.ActiveSessions())
}

func TestStopRejectsReportedSession(t *testing.T) {
	clock := newFakeClock()
	h := newHarness(t, clock)
	view := startCountdown(t, h)
	clock.Advance(DefaultCountdown)

	err := h.ctl.Stop(context.Background(), view.ID)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, 1, h.ctl.ActiveSessions())
}

func TestCancelOutsideCountdownIsStateError(t *testing.T) {
	h := newHarness(t, newFakeClock())
	view, err := h.ctl.Start(context.Background(), "user-1", "")
	require.NoError(t, err)

	_, err = h.ctl.Cancel(context.Background(), view.ID, "", nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Empty(t, h.learningRecords(t))
}
