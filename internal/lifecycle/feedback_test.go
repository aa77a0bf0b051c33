package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

func TestFeedbackTruePositive(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()
	res, err := h.svc.ReportEmergency(ctx, ReportRequest{UserID: "user-1", Readings: emergencyReadings()})
	require.NoError(t, err)

	lr, err := h.svc.RecordFeedback(ctx, FeedbackRequest{
		UserID: "user-1", EmergencyID: res.EmergencyID, Outcome: model.OutcomeTruePositive,
	})
	require.NoError(t, err)
	assert.Equal(t, res.EmergencyID, lr.EmergencyID)
	assert.InDelta(t, 20.5, lr.SensorSnapshot.Motion.Magnitude, 0.001)

	th, err := h.thresholds.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultThresholds("user-1").MotionSensitivity, th.MotionSensitivity)
	assert.Len(t, h.learningRecords(t), 1)
}

func TestFeedbackMissedEmergencyRaisesSensitivity(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()

	snap := model.SensorSnapshot{Motion: fallMotion()}
	lr, err := h.svc.RecordFeedback(ctx, FeedbackRequest{
		UserID: "user-1", SessionID: "sos-9", Outcome: model.OutcomeMissedEmergency, SensorData: &snap,
	})
	require.NoError(t, err)
	assert.Empty(t, lr.EmergencyID)
	assert.Equal(t, "sos-9", lr.SessionID)

	th, err := h.thresholds.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 1.05, th.MotionSensitivity, 1e-9)
	assert.InDelta(t, 1.05, th.AudioSensitivity, 1e-9)
	assert.InDelta(t, 1.02, th.ContextWeight, 1e-9)
}

func TestFeedbackValidation(t *testing.T) {
	h := newHarness(t, newFakeClock())
	ctx := context.Background()
	res, err := h.svc.ReportEmergency(ctx, ReportRequest{UserID: "user-1", Readings: emergencyReadings()})
	require.NoError(t, err)
	snap := model.SensorSnapshot{Motion: fallMotion()}

	tests := []struct {
		name string
		req  FeedbackRequest
	}{
		{"missing user", FeedbackRequest{Outcome: model.OutcomeTruePositive, EmergencyID: res.EmergencyID}},
		{"true positive without emergency", FeedbackRequest{UserID: "user-1", Outcome: model.OutcomeTruePositive}},
		{"other user's emergency", FeedbackRequest{UserID: "user-2", Outcome: model.OutcomeTruePositive, EmergencyID: res.EmergencyID}},
		{"missed with emergency", FeedbackRequest{UserID: "user-1", Outcome: model.OutcomeMissedEmergency, EmergencyID: res.EmergencyID, SensorData: &snap}},
		{"missed without data", FeedbackRequest{UserID: "user-1", Outcome: model.OutcomeMissedEmergency}},
		{"false positive", FeedbackRequest{UserID: "user-1", Outcome: model.OutcomeFalsePositive, EmergencyID: res.EmergencyID}},
		{"unknown outcome", FeedbackRequest{UserID: "user-1", Outcome: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.RecordFeedback(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), err.Error())
		})
	}
	assert.Empty(t, h.learningRecords(t))

	_, err = h.svc.RecordFeedback(ctx, FeedbackRequest{UserID: "user-1", Outcome: model.OutcomeTruePositive, EmergencyID: "nope"})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
