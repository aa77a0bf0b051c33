package datastore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// MemoryStore is an in-process Interface implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
	now  func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document), now: time.Now}
}

func copyDoc(d Document) Document {
	d.Data = slices.Clone(d.Data)
	return d
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "get", collection, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return nil, notFoundError(collection, id)
	}
	out := copyDoc(d)
	return &out, nil
}

// Query iterates a map, so the result order is random.
func (m *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "query", collection, "")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, d := range m.docs[collection] {
		if q.UserID != "" && d.UserID != q.UserID {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		out = append(out, copyDoc(d))
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeError(err, "put", doc.Collection, doc.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	stored := copyDoc(*doc)
	if existing, ok := m.docs[doc.Collection][doc.ID]; ok {
		stored.Version = existing.Version + 1
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.Version = 1
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.collection(doc.Collection)[doc.ID] = stored
	doc.Version, doc.CreatedAt, doc.UpdatedAt = stored.Version, stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (m *MemoryStore) Create(ctx context.Context, doc *Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeError(err, "create", doc.Collection, doc.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.Collection][doc.ID]; ok {
		return existsError(doc.Collection, doc.ID)
	}
	now := m.now()
	stored := copyDoc(*doc)
	stored.Version, stored.CreatedAt, stored.UpdatedAt = 1, now, now
	m.collection(doc.Collection)[doc.ID] = stored
	doc.Version, doc.CreatedAt, doc.UpdatedAt = 1, now, now
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, patch Patch) (int64, error) {
	return m.UpdateIf(ctx, collection, id, AnyVersion, patch)
}

func (m *MemoryStore) UpdateIf(ctx context.Context, collection, id string, expected int64, patch Patch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeError(err, "update", collection, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return 0, notFoundError(collection, id)
	}
	if expected != AnyVersion && d.Version != expected {
		return 0, versionConflictError(collection, id, expected, d.Version)
	}
	data, err := applyPatch(d.Data, patch)
	if err != nil {
		return 0, storeError(err, "update", collection, id)
	}
	d.Data = json.RawMessage(data)
	d.Status = patchedStatus(patch, d.Status)
	d.Version++
	d.UpdatedAt = m.now()
	m.docs[collection][id] = d
	return d.Version, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) collection(name string) map[string]Document {
	c, ok := m.docs[name]
	if !ok {
		c = make(map[string]Document)
		m.docs[name] = c
	}
	return c
}
