package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/safewatch/internal/logger"
)

// documentRow is the single table behind every collection.
type documentRow struct {
	Collection string    `gorm:"primaryKey;size:64;index:idx_documents_owner,priority:1"`
	ID         string    `gorm:"primaryKey;size:64"`
	UserID     string    `gorm:"size:64;index:idx_documents_owner,priority:2"`
	Status     string    `gorm:"size:32"`
	Data       string    `gorm:"type:longtext;not null"`
	Version    int64     `gorm:"not null;default:1"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (documentRow) TableName() string {
	return "documents"
}

func (r *documentRow) toDocument() Document {
	return Document{
		Collection: r.Collection,
		ID:         r.ID,
		UserID:     r.UserID,
		Status:     r.Status,
		Data:       json.RawMessage(r.Data),
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// GormStore implements Interface on top of GORM.
type GormStore struct {
	DB  *gorm.DB
	now func() time.Time
	log logger.Logger
}

// NewGormStore wraps an open GORM connection and migrates the documents table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{DB: db, now: time.Now, log: GetLogger()}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, storeError(fmt.Errorf("migrate documents table: %w", err), "migrate", "documents", "")
	}
	return s, nil
}

func (s *GormStore) where(ctx context.Context, collection, id string) *gorm.DB {
	return s.DB.WithContext(ctx).Where("collection = ? AND id = ?", collection, id)
}

// Get returns a document by id.
func (s *GormStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var row documentRow
	err := s.where(ctx, collection, id).Take(&row).Error
	if err != nil {
		if isRecordNotFound(err) {
			return nil, notFoundError(collection, id)
		}
		return nil, storeError(err, "get", collection, id)
	}
	doc := row.toDocument()
	return &doc, nil
}

// Query returns matching documents. No ordering is applied.
func (s *GormStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	tx := s.DB.WithContext(ctx).Where("collection = ?", collection)
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []documentRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, storeError(err, "query", collection, "")
	}
	docs := make([]Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].toDocument()
	}
	return docs, nil
}

// Put creates or replaces a document, bumping its version.
func (s *GormStore) Put(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	now := s.now()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing documentRow
		err := tx.Where("collection = ? AND id = ?", doc.Collection, doc.ID).Take(&existing).Error
		switch {
		case isRecordNotFound(err):
			row := s.newRow(doc, now)
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			doc.Version, doc.CreatedAt, doc.UpdatedAt = row.Version, row.CreatedAt, row.UpdatedAt
			return nil
		case err != nil:
			return err
		}
		res := tx.Model(&documentRow{}).
			Where("collection = ? AND id = ? AND version = ?", doc.Collection, doc.ID, existing.Version).
			Updates(map[string]any{
				"user_id":    doc.UserID,
				"status":     doc.Status,
				"data":       string(doc.Data),
				"version":    existing.Version + 1,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return versionConflictError(doc.Collection, doc.ID, existing.Version, -1)
		}
		doc.Version, doc.CreatedAt, doc.UpdatedAt = existing.Version+1, existing.CreatedAt, now
		return nil
	})
	if err != nil {
		return s.wrap(err, "put", doc.Collection, doc.ID)
	}
	return nil
}

// Create inserts a new document.
func (s *GormStore) Create(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	row := s.newRow(doc, s.now())
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return storeError(res.Error, "create", doc.Collection, doc.ID)
	}
	if res.RowsAffected == 0 {
		return existsError(doc.Collection, doc.ID)
	}
	doc.Version, doc.CreatedAt, doc.UpdatedAt = row.Version, row.CreatedAt, row.UpdatedAt
	return nil
}

// Update applies a patch regardless of the stored version.
func (s *GormStore) Update(ctx context.Context, collection, id string, patch Patch) (int64, error) {
	return s.UpdateIf(ctx, collection, id, AnyVersion, patch)
}

// UpdateIf applies a patch when the stored version matches expected. The
// version-guarded UPDATE makes this a compare-and-swap on every backend.
func (s *GormStore) UpdateIf(ctx context.Context, collection, id string, expected int64, patch Patch) (int64, error) {
	var version int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		if err := tx.Where("collection = ? AND id = ?", collection, id).Take(&row).Error; err != nil {
			if isRecordNotFound(err) {
				return notFoundError(collection, id)
			}
			return err
		}
		if expected != AnyVersion && row.Version != expected {
			return versionConflictError(collection, id, expected, row.Version)
		}
		data, err := applyPatch(json.RawMessage(row.Data), patch)
		if err != nil {
			return err
		}
		res := tx.Model(&documentRow{}).
			Where("collection = ? AND id = ? AND version = ?", collection, id, row.Version).
			Updates(map[string]any{
				"data":       string(data),
				"status":     patchedStatus(patch, row.Status),
				"version":    row.Version + 1,
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return versionConflictError(collection, id, row.Version, -1)
		}
		version = row.Version + 1
		return nil
	})
	if err != nil {
		return 0, s.wrap(err, "update", collection, id)
	}
	return version, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return storeError(err, "close", "documents", "")
	}
	return sqlDB.Close()
}

func (s *GormStore) newRow(doc *Document, now time.Time) documentRow {
	return documentRow{
		Collection: doc.Collection,
		ID:         doc.ID,
		UserID:     doc.UserID,
		Status:     doc.Status,
		Data:       string(doc.Data),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// wrap keeps already categorized errors and tags raw driver errors.
func (s *GormStore) wrap(err error, operation, collection, id string) error {
	if isEnhanced(err) {
		return err
	}
	return storeError(err, operation, collection, id)
}
