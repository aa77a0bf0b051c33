package model

import "time"

// LocationStatus is the tracking state of a LocationSample.
type LocationStatus string

const (
	LocationActive   LocationStatus = "active"
	LocationResolved LocationStatus = "resolved"
)

// LocationSample is the live position of one SOS session, overwritten while tracking.
type LocationSample struct {
	ID        string         `json:"id"` // session id
	UserID    string         `json:"userId"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Accuracy  float64        `json:"accuracy"`
	Severity  string         `json:"severity,omitempty"`
	Status    LocationStatus `json:"status"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int64          `json:"version"`
}

// EmergencyContact is a person the user asked to be notified.
type EmergencyContact struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RecipientType selects the message template.
type RecipientType string

const (
	RecipientAdmin            RecipientType = "admin"
	RecipientEmergencyContact RecipientType = "emergency_contact"
)

// Recipient is one notification target.
type Recipient struct {
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Type         RecipientType `json:"type"`
	Relationship string        `json:"relationship,omitempty"`
}
