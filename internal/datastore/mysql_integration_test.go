//go:build integration

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

func TestMySQLStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := mysql.Run(ctx, "mysql:8.4",
		mysql.WithDatabase("safewatch"),
		mysql.WithUsername("safewatch"),
		mysql.WithPassword("safewatch"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True", "loc=UTC")
	require.NoError(t, err)

	store, err := OpenMySQLDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repos := NewRepositories(store)
	rec := sampleRecord()
	require.NoError(t, repos.Emergencies.Create(ctx, rec))
	assert.True(t, errors.IsConflict(repos.Emergencies.Create(ctx, rec)))

	_, err = repos.Emergencies.UpdateIf(ctx, rec.ID, rec.Version, Patch{"status": model.RecordResolved})
	require.NoError(t, err)
	_, err = repos.Emergencies.UpdateIf(ctx, rec.ID, rec.Version, Patch{"status": model.RecordCancelled})
	assert.True(t, errors.IsConflict(err))

	got, err := repos.Emergencies.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordResolved, got.Status)
	assert.Equal(t, int64(2), got.Version)

	require.NoError(t, store.DB.Migrator().DropTable(&documentRow{}))
	_, err = store.Get(ctx, CollectionEmergencies, rec.ID)
	assert.True(t, errors.IsStructural(err), "got %v", err)
}
