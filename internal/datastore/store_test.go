package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/errors"
)

func openTestSQLite(t *testing.T) *GormStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// backends runs fn against every store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Interface)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, openTestSQLite(t)) })
}

func doc(collection, id, user, status string, data map[string]any) *Document {
	raw, _ := json.Marshal(data)
	return &Document{Collection: collection, ID: id, UserID: user, Status: status, Data: raw}
}

func decode(t *testing.T, d *Document) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(d.Data, &m))
	return m
}

func TestStoreGetNotFound(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		_, err := s.Get(context.Background(), "things", "missing")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestStoreCreateAndGet(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		d := doc("things", "a", "u1", "active", map[string]any{"name": "first"})

		require.NoError(t, s.Create(ctx, d))
		assert.Equal(t, int64(1), d.Version)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "active", got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "first", decode(t, got)["name"])

		err = s.Create(ctx, doc("things", "a", "u1", "", map[string]any{"name": "dup"}))
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err))
	})
}

func TestStorePutReplaces(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, doc("things", "a", "u1", "", map[string]any{"n": 1})))
		d := doc("things", "a", "u1", "done", map[string]any{"n": 2})
		require.NoError(t, s.Put(ctx, d))
		assert.Equal(t, int64(2), d.Version)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.Equal(t, "done", got.Status)
		assert.InDelta(t, 2, decode(t, got)["n"], 0)
	})
}

func TestStoreQueryFilters(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, doc("locs", "1", "u1", "active", map[string]any{"i": 1})))
		require.NoError(t, s.Create(ctx, doc("locs", "2", "u1", "resolved", map[string]any{"i": 2})))
		require.NoError(t, s.Create(ctx, doc("locs", "3", "u2", "active", map[string]any{"i": 3})))
		require.NoError(t, s.Create(ctx, doc("other", "4", "u1", "active", map[string]any{"i": 4})))

		docs, err := s.Query(ctx, "locs", Query{UserID: "u1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2"}, ids(docs))

		docs, err = s.Query(ctx, "locs", Query{UserID: "u1", Status: "active"})
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids(docs))

		docs, err = s.Query(ctx, "locs", Query{})
		require.NoError(t, err)
		assert.Len(t, docs, 3)

		docs, err = s.Query(ctx, "locs", Query{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i := range docs {
		out[i] = docs[i].ID
	}
	sort.Strings(out)
	return out
}

func TestStoreUpdatePatchesFields(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, doc("things", "a", "u1", "active", map[string]any{"keep": "x", "n": 1})))

		v, err := s.Update(ctx, "things", "a", Patch{"n": 5, "status": "cancelled"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		fields := decode(t, got)
		assert.Equal(t, "x", fields["keep"])
		assert.InDelta(t, 5, fields["n"], 0)
		assert.Equal(t, "cancelled", fields["status"])
		assert.Equal(t, "cancelled", got.Status)

		_, err = s.Update(ctx, "things", "missing", Patch{"n": 1})
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestStoreUpdateIfVersionCheck(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, doc("things", "a", "u1", "", map[string]any{"n": 0})))

		v, err := s.UpdateIf(ctx, "things", "a", 1, Patch{"n": 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		_, err = s.UpdateIf(ctx, "things", "a", 1, Patch{"n": 99})
		require.Error(t, err)
		assert.True(t, errors.IsConflict(err))

		got, err := s.Get(ctx, "things", "a")
		require.NoError(t, err)
		assert.InDelta(t, 1, decode(t, got)["n"], 0)
	})
}

func TestStoreUpdateIfNoLostUpdates(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		require.NoError(t, s.Create(ctx, doc("counters", "c", "u1", "", map[string]any{"n": 0})))

		const workers = 8
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := s.Get(ctx, "counters", "c")
					if err != nil {
						t.Error(err)
						return
					}
					n := decode(t, cur)["n"].(float64)
					_, err = s.UpdateIf(ctx, "counters", "c", cur.Version, Patch{"n": n + 1})
					if err == nil {
						return
					}
					if !errors.IsConflict(err) {
						t.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "counters", "c")
		require.NoError(t, err)
		assert.InDelta(t, workers, decode(t, got)["n"], 0)
		assert.Equal(t, int64(workers+1), got.Version)
	})
}

func TestStoreValidation(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		err := s.Create(ctx, &Document{Collection: "things", Data: json.RawMessage(`{}`)})
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		err = s.Put(ctx, nil)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})
}

func TestStoreCancelledContextIsTransient(t *testing.T) {
	backends(t, func(t *testing.T, s Interface) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Get(ctx, "things", "a")
		require.Error(t, err)
		assert.True(t, errors.IsTransient(err), "got %v", err)
	})
}

func TestSQLiteMissingTableIsStructural(t *testing.T) {
	store := openTestSQLite(t)
	require.NoError(t, store.DB.Migrator().DropTable(&documentRow{}))

	_, err := store.Get(context.Background(), "things", "a")
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err), "got %v", err)
	assert.False(t, errors.IsTransient(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want errors.ErrorCategory
	}{
		{context.DeadlineExceeded, errors.CategoryStoreTransient},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), errors.CategoryStoreTransient},
		{fmt.Errorf("database is locked"), errors.CategoryStoreTransient},
		{fmt.Errorf("dial tcp 10.0.0.1:3306: connect: connection refused"), errors.CategoryStoreTransient},
		{fmt.Errorf("no such table: documents"), errors.CategoryStoreStructural},
		{fmt.Errorf("Error 1146 (42S02): Table 'safewatch.documents' doesn't exist"), errors.CategoryStoreStructural},
		{fmt.Errorf("Error 1054 (42S22): Unknown column 'status'"), errors.CategoryStoreStructural},
		{fmt.Errorf("UNIQUE constraint failed: documents.collection, documents.id"), errors.CategoryConflict},
		{fmt.Errorf("something odd"), errors.CategoryDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			got, _ := classify(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s, err := Open(Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
}

func TestMySQLDSN(t *testing.T) {
	cfg := MySQLConfig{Host: "db", Port: "3306", Username: "sw", Password: "pw", Database: "safewatch"}
	parsed, err := gomysql.ParseDSN(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "sw", parsed.User)
	assert.Equal(t, "pw", parsed.Passwd)
	assert.Equal(t, "db:3306", parsed.Addr)
	assert.Equal(t, "safewatch", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
}

func TestClassifyDriverErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCategory
	}{
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, errors.CategoryStoreTransient},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, errors.CategoryConflict},
		{"sqlite readonly", sqlite3.Error{Code: sqlite3.ErrReadonly}, errors.CategoryStoreStructural},
		{"mysql deadlock", &gomysql.MySQLError{Number: 1213, Message: "Deadlock found"}, errors.CategoryStoreTransient},
		{"mysql duplicate", &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, errors.CategoryConflict},
		{"mysql missing table", &gomysql.MySQLError{Number: 1146, Message: "Table missing"}, errors.CategoryStoreStructural},
		{"message fallback", errors.NewStd("database is locked"), errors.CategoryStoreTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := classify(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryStoreTimestamps(t *testing.T) {
	s := NewMemoryStore()
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	d := doc("things", "a", "", "", map[string]any{"n": 1})
	require.NoError(t, s.Create(ctx, d))
	clock = clock.Add(time.Minute)
	_, err := s.Update(ctx, "things", "a", Patch{"n": 2})
	require.NoError(t, err)

	got, err := s.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)
}
