package recipients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/model"
)

func TestContactBookAddAndList(t *testing.T) {
	repos := datastore.NewRepositories(datastore.NewMemoryStore())
	book := NewContactBook(repos.Contacts)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	book.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	ctx := context.Background()
	first, err := book.Add(ctx, model.EmergencyContact{UserID: "user-1", Name: " Sam ", Email: "Sam <sam@example.com>"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "Sam", first.Name)
	assert.Equal(t, "sam@example.com", first.Email)

	_, err = book.Add(ctx, model.EmergencyContact{UserID: "user-1", Name: "Kim", Email: "kim@example.com"})
	require.NoError(t, err)
	_, err = book.Add(ctx, model.EmergencyContact{UserID: "user-2", Name: "Lee", Email: "lee@example.com"})
	require.NoError(t, err)

	got, err := book.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Sam", got[0].Name)
	assert.Equal(t, "Kim", got[1].Name)

	// Added contacts are picked up by the resolver.
	r, err := NewResolver(repos.Contacts, Operator{Email: opEmail})
	require.NoError(t, err)
	rcpts, err := r.Resolve(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, rcpts, 3)
}

func TestContactBookValidation(t *testing.T) {
	book := NewContactBook(datastore.NewRepositories(datastore.NewMemoryStore()).Contacts)
	tests := []struct {
		name string
		c    model.EmergencyContact
	}{
		{"missing user", model.EmergencyContact{Name: "Sam", Email: "sam@example.com"}},
		{"missing name", model.EmergencyContact{UserID: "u", Email: "sam@example.com"}},
		{"missing email", model.EmergencyContact{UserID: "u", Name: "Sam"}},
		{"bad email", model.EmergencyContact{UserID: "u", Name: "Sam", Email: "not-an-address"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := book.Add(context.Background(), tt.c)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}
