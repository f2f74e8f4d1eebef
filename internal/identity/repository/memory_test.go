package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rightvendors/portfolyze/internal/identity/domain"
)

func TestMemoryRepository(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := r.GetByPhone(ctx, "+919876543210")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, r.Create(ctx, &domain.Identity{ID: "id-1", Phone: "+919876543210", CreatedAt: now, UpdatedAt: now}))
	assert.ErrorIs(t, r.Create(ctx, &domain.Identity{ID: "id-2", Phone: "+919876543210"}), ErrDuplicatePhone)

	require.NoError(t, r.UpdateDisplayName(ctx, "id-1", "Asha Rao", now.Add(time.Second)))
	require.NoError(t, r.TouchSignIn(ctx, "id-1", now.Add(2*time.Second)))

	got, err = r.GetByPhone(ctx, "+919876543210")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "Asha Rao", got.DisplayName)
	require.NotNil(t, got.LastSignInAt)
	assert.Equal(t, now.Add(2*time.Second), *got.LastSignInAt)

	got.DisplayName = "mutated"
	again, _ := r.GetByID(ctx, "id-1")
	assert.Equal(t, "Asha Rao", again.DisplayName, "returned values are copies")
}
