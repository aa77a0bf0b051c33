package scoring

import "time"

// Sensor rule thresholds and contributions.
const (
	magnitudeThreshold  = 20.0
	magnitudePoints     = 40.0
	varianceThreshold   = 10.0
	variancePoints      = 30.0
	inactivityThreshold = 30 * time.Second
	inactivityPoints    = 30.0
	audioRMSThreshold   = 0.6
	audioRMSPoints      = 20.0
	silenceThreshold    = 60 * time.Second
	silencePoints       = 15.0
)

// Context rule thresholds and contributions.
const (
	lateNightStartHour     = 22
	lateNightEndHour       = 6
	lateNightPoints        = 30.0
	quietNoiseThreshold    = 30.0 // dB
	quietNoisePoints       = 10.0
	darkLightThreshold     = 10.0 // lux
	darkLightPoints        = 10.0
	locationDeviationLimit = 0.7
	locationDeviationBonus = 20.0
	activityDeviationLimit = 0.5
	activityDeviationBonus = 15.0
)

// Location rule thresholds and contributions, distances in metres.
const (
	noNearbyPeoplePoints  = 30.0
	privatePlacePoints    = 20.0
	cellTowerFarThreshold = 5000.0
	cellTowerFarPoints    = 15.0
	facilityNearThreshold = 1000.0
	facilityNearPoints    = -20.0
	facilityFarThreshold  = 10000.0
	facilityFarPoints     = 20.0
)

// Crowd correlation defaults.
const (
	DefaultCrowdRadius      = 500.0
	DefaultCrowdWindow      = 5 * time.Minute
	crowdScoreThreshold     = 60.0
	crowdSinglePoints       = 20.0
	crowdMassIncidentCount  = 3
	crowdMassIncidentPoints = 30.0
)

// Blend weights of the total score.
const (
	sensorWeight   = 0.5
	contextWeight  = 0.2
	locationWeight = 0.2
	crowdWeight    = 0.1
)

// Classification boundaries: below suspiciousFrom is safe, above emergencyAbove is emergency.
const (
	suspiciousFrom = 40.0
	emergencyAbove = 70.0
	maxScore       = 100.0
)
