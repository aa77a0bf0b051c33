package model

import "time"

// Classification is the risk level derived from a total score.
type Classification string

const (
	ClassificationSafe       Classification = "safe"
	ClassificationSuspicious Classification = "suspicious"
	ClassificationEmergency  Classification = "emergency"
)

// ScoreBreakdown decomposes a total score. It is never mutated after creation.
type ScoreBreakdown struct {
	SensorScore   float64 `json:"sensorScore"`
	ContextScore  float64 `json:"contextScore"`
	LocationScore float64 `json:"locationScore"`
	CrowdScore    float64 `json:"crowdScore"`
	TotalScore    float64 `json:"totalScore"`
	Manual        bool    `json:"manual"`
}

// RecordStatus is the persisted status of an EmergencyRecord.
type RecordStatus string

const (
	RecordActive    RecordStatus = "active"
	RecordCancelled RecordStatus = "cancelled"
	RecordResolved  RecordStatus = "resolved"
)

// DispatchSummary is the asynchronous outcome of notifying recipients.
type DispatchSummary struct {
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	CompletedAt time.Time `json:"completedAt"`
}

// EmergencyRecord is created when a session reaches the reported state.
type EmergencyRecord struct {
	ID              string           `json:"id"`
	UserID          string           `json:"userId"`
	UserName        string           `json:"userName,omitempty"`
	SessionID       string           `json:"sessionId,omitempty"`
	SensorData      SensorSnapshot   `json:"sensorData"`
	Location        *LocationContext `json:"location,omitempty"`
	ContextData     ContextSignal    `json:"contextData"`
	Confidence      float64          `json:"confidence"`
	Breakdown       ScoreBreakdown   `json:"breakdown"`
	Status          RecordStatus     `json:"status"`
	Manual          bool             `json:"manual"`
	CreatedAt       time.Time        `json:"createdAt"`
	ResolvedAt      *time.Time       `json:"resolvedAt,omitempty"`
	CancelledAt     *time.Time       `json:"cancelledAt,omitempty"`
	CancelReason    string           `json:"cancelReason,omitempty"`
	ResolutionNotes string           `json:"resolutionNotes,omitempty"`
	Notification    *DispatchSummary `json:"notification,omitempty"`
	Version         int64            `json:"version"`
}

// Clone returns a deep copy.
func (r *EmergencyRecord) Clone() *EmergencyRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.SensorData = r.SensorData.Clone()
	out.ContextData = r.ContextData.Clone()
	if r.Location != nil {
		l := *r.Location
		out.Location = &l
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		out.CancelledAt = &t
	}
	if r.Notification != nil {
		n := *r.Notification
		out.Notification = &n
	}
	return &out
}

// IsTerminal reports whether the record can no longer change status.
func (r *EmergencyRecord) IsTerminal() bool {
	return r.Status == RecordCancelled || r.Status == RecordResolved
}
