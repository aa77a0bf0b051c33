// Package datastore provides the document store used by the pipeline: a small
// get/query/put/update contract over JSON documents, backed by GORM (SQLite or
// MySQL) or by memory.
package datastore

import (
	"context"
	"encoding/json"
	"time"
)

// Collections used by the pipeline.
const (
	CollectionEmergencies = "emergencies"
	CollectionThresholds  = "adaptive_thresholds"
	CollectionContacts    = "emergency_contacts"
	CollectionLocations   = "locations"
	CollectionLearning    = "learning_records"
)

// AnyVersion disables the version check of UpdateIf.
const AnyVersion int64 = -1

// Document is one stored JSON document. UserID and Status are copied out of the
// document so they can be filtered on without decoding.
type Document struct {
	Collection string
	ID         string
	UserID     string
	Status     string
	Data       json.RawMessage
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Query selects documents of one collection by equality on indexed fields.
// Empty fields do not filter. Results are returned in no particular order.
type Query struct {
	UserID string
	Status string
	Limit  int
}

// Patch sets top-level JSON fields of a document. A "status" key also updates
// the indexed status.
type Patch map[string]any

// Interface is the store contract.
type Interface interface {
	// Get returns a document or a not-found error.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query returns matching documents in unspecified order.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Put creates or replaces a document unconditionally.
	Put(ctx context.Context, doc *Document) error
	// Create inserts a document and fails with a conflict error if it exists.
	Create(ctx context.Context, doc *Document) error
	// Update applies patch unconditionally and returns the new version.
	Update(ctx context.Context, collection, id string, patch Patch) (int64, error)
	// UpdateIf applies patch only when the stored version equals expected.
	// A mismatch returns a conflict error.
	UpdateIf(ctx context.Context, collection, id string, expected int64, patch Patch) (int64, error)
	Close() error
}
