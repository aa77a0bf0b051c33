package location

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

func put(t *testing.T, repos *datastore.Repositories, id, user string, status model.LocationStatus, at time.Time) {
	t.Helper()
	require.NoError(t, repos.Locations.Create(context.Background(), &model.LocationSample{
		ID: id, UserID: user, Latitude: 60, Longitude: 24, Status: status, UpdatedAt: at,
	}))
}

func TestLatestActivePicksNewest(t *testing.T) {
	repos := datastore.NewRepositories(datastore.NewMemoryStore())
	base := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	put(t, repos, "s1", "u", model.LocationActive, base)
	put(t, repos, "s2", "u", model.LocationActive, base.Add(10*time.Minute))
	put(t, repos, "s3", "u", model.LocationResolved, base.Add(time.Hour))
	put(t, repos, "s4", "other", model.LocationActive, base.Add(2*time.Hour))
	put(t, repos, "s5", "u", model.LocationActive, base.Add(5*time.Minute))

	e := NewEnricher(repos.Locations)
	// Memory store order is random; repeat to catch order dependence.
	for range 20 {
		got := e.LatestActive(context.Background(), "u")
		require.NotNil(t, got)
		assert.Equal(t, "s2", got.ID)
	}
}

func TestLatestActiveNone(t *testing.T) {
	repos := datastore.NewRepositories(datastore.NewMemoryStore())
	put(t, repos, "s1", "u", model.LocationResolved, time.Now())

	e := NewEnricher(repos.Locations)
	assert.Nil(t, e.LatestActive(context.Background(), "u"))
	assert.Nil(t, e.LatestActive(context.Background(), "nobody"))
}

type failingStore struct {
	*datastore.MemoryStore
}

func (failingStore) Query(context.Context, string, datastore.Query) ([]datastore.Document, error) {
	return nil, errors.New(fmt.Errorf("database is locked")).Category(errors.CategoryStoreTransient).Build()
}

func TestLatestActiveStoreErrorIsNil(t *testing.T) {
	e := NewEnricher(datastore.NewRepositories(failingStore{datastore.NewMemoryStore()}).Locations)
	assert.Nil(t, e.LatestActive(context.Background(), "u"))
}
