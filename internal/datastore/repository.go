package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

// Mapping describes how a type is stored.
type Mapping[T any] struct {
	Collection string
	// Keys returns the document id and its indexed fields.
	Keys func(*T) (id, userID, status string)
	// SetVersion copies the stored version into the value, optional.
	SetVersion func(*T, int64)
	// Mutable lists the JSON fields Update may change. Nil allows every field.
	Mutable []string
}

// Repository stores values of T as JSON documents.
type Repository[T any] struct {
	store   Interface
	mapping Mapping[T]
}

// NewRepository binds a mapping to a store.
func NewRepository[T any](store Interface, mapping Mapping[T]) *Repository[T] {
	return &Repository[T]{store: store, mapping: mapping}
}

// Get loads one value.
func (r *Repository[T]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := r.store.Get(ctx, r.mapping.Collection, id)
	if err != nil {
		return nil, err
	}
	return r.decode(doc)
}

// Query loads all matching values in store order.
func (r *Repository[T]) Query(ctx context.Context, q Query) ([]T, error) {
	docs, err := r.store.Query(ctx, r.mapping.Collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for i := range docs {
		v, err := r.decode(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Create inserts v; it fails with a conflict error if the id exists.
func (r *Repository[T]) Create(ctx context.Context, v *T) error {
	doc, err := r.encode(v)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, doc); err != nil {
		return err
	}
	r.setVersion(v, doc.Version)
	return nil
}

// Put creates or replaces v.
func (r *Repository[T]) Put(ctx context.Context, v *T) error {
	doc, err := r.encode(v)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, doc); err != nil {
		return err
	}
	r.setVersion(v, doc.Version)
	return nil
}

// Update patches a stored value unconditionally.
func (r *Repository[T]) Update(ctx context.Context, id string, patch Patch) (int64, error) {
	return r.UpdateIf(ctx, id, AnyVersion, patch)
}

// UpdateIf patches a stored value when its version matches expected.
func (r *Repository[T]) UpdateIf(ctx context.Context, id string, expected int64, patch Patch) (int64, error) {
	if err := r.checkMutable(patch); err != nil {
		return 0, err
	}
	return r.store.UpdateIf(ctx, r.mapping.Collection, id, expected, patch)
}

func (r *Repository[T]) checkMutable(patch Patch) error {
	if len(patch) == 0 {
		return validationError("patch cannot be empty", "patch")
	}
	if r.mapping.Mutable == nil {
		return nil
	}
	for key := range patch {
		if !slices.Contains(r.mapping.Mutable, key) {
			return errors.Newf("field %q of %s is immutable", key, r.mapping.Collection).
				Component("datastore").
				Category(errors.CategoryValidation).
				Context("field", key).
				Build()
		}
	}
	return nil
}

func (r *Repository[T]) encode(v *T) (*Document, error) {
	if v == nil {
		return nil, validationError("value cannot be nil", "value")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.New(fmt.Errorf("encode %s document: %w", r.mapping.Collection, err)).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	id, userID, status := r.mapping.Keys(v)
	return &Document{
		Collection: r.mapping.Collection,
		ID:         id,
		UserID:     userID,
		Status:     status,
		Data:       data,
	}, nil
}

func (r *Repository[T]) decode(doc *Document) (*T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, errors.New(fmt.Errorf("decode %s document %s: %w", doc.Collection, doc.ID, err)).
			Component("datastore").
			Category(errors.CategoryStoreStructural).
			Build()
	}
	r.setVersion(&v, doc.Version)
	return &v, nil
}

func (r *Repository[T]) setVersion(v *T, version int64) {
	if r.mapping.SetVersion != nil {
		r.mapping.SetVersion(v, version)
	}
}

// Repositories groups the typed repositories of the pipeline.
type Repositories struct {
	Emergencies *Repository[model.EmergencyRecord]
	Thresholds  *Repository[model.AdaptiveThresholds]
	Contacts    *Repository[model.EmergencyContact]
	Locations   *Repository[model.LocationSample]
	Learning    *Repository[model.LearningRecord]
}

// EmergencyMutableFields are the only record fields status transitions may change.
var EmergencyMutableFields = []string{
	"status", "resolvedAt", "cancelledAt", "cancelReason", "resolutionNotes", "notification",
}

// NewRepositories creates the typed repositories over one store.
func NewRepositories(store Interface) *Repositories {
	return &Repositories{
		Emergencies: NewRepository(store, Mapping[model.EmergencyRecord]{
			Collection: CollectionEmergencies,
			Keys: func(r *model.EmergencyRecord) (string, string, string) {
				return r.ID, r.UserID, string(r.Status)
			},
			SetVersion: func(r *model.EmergencyRecord, v int64) { r.Version = v },
			Mutable:    EmergencyMutableFields,
		}),
		Thresholds: NewRepository(store, Mapping[model.AdaptiveThresholds]{
			Collection: CollectionThresholds,
			Keys: func(t *model.AdaptiveThresholds) (string, string, string) {
				return t.UserID, t.UserID, ""
			},
			SetVersion: func(t *model.AdaptiveThresholds, v int64) { t.Version = v },
			Mutable: []string{
				"motionSensitivity", "audioSensitivity", "contextWeight", "falsePositiveCount", "updatedAt",
			},
		}),
		Contacts: NewRepository(store, Mapping[model.EmergencyContact]{
			Collection: CollectionContacts,
			Keys: func(c *model.EmergencyContact) (string, string, string) {
				return c.ID, c.UserID, ""
			},
			Mutable: []string{},
		}),
		Locations: NewRepository(store, Mapping[model.LocationSample]{
			Collection: CollectionLocations,
			Keys: func(l *model.LocationSample) (string, string, string) {
				return l.ID, l.UserID, string(l.Status)
			},
			SetVersion: func(l *model.LocationSample, v int64) { l.Version = v },
			Mutable:    []string{"latitude", "longitude", "accuracy", "severity", "status", "updatedAt"},
		}),
		Learning: NewRepository(store, Mapping[model.LearningRecord]{
			Collection: CollectionLearning,
			Keys: func(l *model.LearningRecord) (string, string, string) {
				return l.ID, l.UserID, string(l.Outcome)
			},
			Mutable: []string{},
		}),
	}
}
