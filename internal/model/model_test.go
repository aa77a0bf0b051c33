package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingsUnmarshalMarksOmittedAsUnknown(t *testing.T) {
	var r Readings
	require.NoError(t, json.Unmarshal([]byte(`{
		"sensorData": {"motion": {"magnitude": 21}},
		"contextData": {"environment": {"noiseLevel": 25}},
		"location": {"latitude": 60.2, "longitude": 24.9, "isPublicPlace": true}
	}`), &r))

	require.NotNil(t, r.Sensor.Motion)
	assert.InDelta(t, 21.0, r.Sensor.Motion.Magnitude, 0)
	assert.InDelta(t, 25.0, r.Context.Environment.NoiseLevel, 0)
	assert.InDelta(t, Unknown, r.Context.Environment.LightLevel, 0)
	require.NotNil(t, r.Location)
	assert.Equal(t, int(Unknown), r.Location.NearbyPeople)
	assert.InDelta(t, Unknown, r.Location.NearestHospital, 0)
	assert.True(t, r.Location.IsPublicPlace)
}

func TestReadingsUnmarshalWithoutLocation(t *testing.T) {
	for _, body := range []string{`{}`, `{"location": null}`} {
		var r Readings
		require.NoError(t, json.Unmarshal([]byte(body), &r))
		assert.Nil(t, r.Location, body)
		assert.InDelta(t, Unknown, r.Context.Environment.NoiseLevel, 0, body)
	}
}

func TestReadingsUnmarshalExplicitZero(t *testing.T) {
	var r Readings
	require.NoError(t, json.Unmarshal([]byte(`{"contextData":{"environment":{"lightLevel":0}},"location":{"nearbyPeople":0}}`), &r))
	assert.InDelta(t, 0.0, r.Context.Environment.LightLevel, 0)
	assert.Equal(t, 0, r.Location.NearbyPeople)
}

func TestCrowdSignalUnmarshalOmittedDistance(t *testing.T) {
	var r Readings
	require.NoError(t, json.Unmarshal([]byte(`{"contextData":{"crowdSignals":[
		{"latitude": 48.85, "longitude": 2.35, "emergencyScore": 90, "timestamp": "2026-03-10T14:00:00Z"},
		{"distance": 0, "emergencyScore": 90, "timestamp": "2026-03-10T14:00:00Z"}
	]}}`), &r))

	require.Len(t, r.Context.CrowdSignals, 2)
	assert.InDelta(t, Unknown, r.Context.CrowdSignals[0].Distance, 0)
	assert.InDelta(t, 48.85, r.Context.CrowdSignals[0].Latitude, 0)
	assert.InDelta(t, 0.0, r.Context.CrowdSignals[1].Distance, 0)
}

func TestReadingsUnmarshalInvalid(t *testing.T) {
	var r Readings
	require.Error(t, json.Unmarshal([]byte(`{"sensorData": 5}`), &r))
}

func TestEmergencyRecordCloneIsDeep(t *testing.T) {
	at := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	orig := &EmergencyRecord{
		ID:           "em-1",
		SensorData:   SensorSnapshot{Motion: &MotionReading{Magnitude: 20}},
		Location:     &LocationContext{Latitude: 60},
		ResolvedAt:   &at,
		Notification: &DispatchSummary{Total: 2},
	}
	c := orig.Clone()
	c.SensorData.Motion.Magnitude = 1
	c.Location.Latitude = 1
	*c.ResolvedAt = at.Add(time.Hour)
	c.Notification.Total = 9

	assert.InDelta(t, 20.0, orig.SensorData.Motion.Magnitude, 0)
	assert.InDelta(t, 60.0, orig.Location.Latitude, 0)
	assert.True(t, orig.ResolvedAt.Equal(at))
	assert.Equal(t, 2, orig.Notification.Total)

	var nilRec *EmergencyRecord
	assert.Nil(t, nilRec.Clone())
}

func TestEmergencyRecordIsTerminal(t *testing.T) {
	assert.False(t, (&EmergencyRecord{Status: RecordActive}).IsTerminal())
	assert.True(t, (&EmergencyRecord{Status: RecordCancelled}).IsTerminal())
	assert.True(t, (&EmergencyRecord{Status: RecordResolved}).IsTerminal())
}

func TestOutcomeValid(t *testing.T) {
	assert.True(t, OutcomeFalsePositive.Valid())
	assert.True(t, OutcomeMissedEmergency.Valid())
	assert.False(t, Outcome("maybe").Valid())
}
