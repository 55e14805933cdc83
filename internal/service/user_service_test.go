package service

import (
	"context"
	"strings"
	"testing"

	"helpr/internal/domain"
	"helpr/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUpdateMe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.users.UpdateMe(ctx, env.helper, ProfileUpdate{
		Name:     strPtr("  Hal H. "),
		Bio:      strPtr("Ten years of cleaning experience"),
		Services: []models.ServiceCategory{models.CategoryHome, models.CategoryTech},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hal H.", u.Name)

	stored, err := env.users.Me(ctx, env.helper)
	require.NoError(t, err)
	assert.Equal(t, "Ten years of cleaning experience", stored.HelperProfile.Bio)
	assert.ElementsMatch(t, []models.ServiceCategory{models.CategoryHome, models.CategoryTech}, stored.HelperProfile.Services)
	assert.True(t, stored.HelperProfile.IsVerified)

	// helper-only fields are ignored for customers
	c, err := env.users.UpdateMe(ctx, env.customer, ProfileUpdate{Bio: strPtr("ignored")})
	require.NoError(t, err)
	assert.Nil(t, c.HelperProfile)

	_, err = env.users.UpdateMe(ctx, env.helper, ProfileUpdate{
		Name:     strPtr(" "),
		Bio:      strPtr(strings.Repeat("b", models.MaxBioLength+1)),
		Services: []models.ServiceCategory{"gardening"},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestProfileEditDoesNotRevertModeration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	snapshot, err := env.db.GetUserByID(ctx, env.helper.ID)
	require.NoError(t, err)

	_, err = env.admin.Deactivate(ctx, env.admin1, env.helper.ID, "fraud", models.Provenance{})
	require.NoError(t, err)
	_, err = env.admin.UnverifyHelper(ctx, env.admin1, env.helper.ID, "fraud", models.Provenance{})
	require.NoError(t, err)

	logger := zerolog.Nop()
	users := NewUserService(&staleUsers{DB: env.db, stale: snapshot}, &logger)
	_, err = users.UpdateMe(ctx, env.helper, ProfileUpdate{Name: strPtr("Hal Renamed")})
	require.NoError(t, err)

	stored, err := env.db.GetUserByID(ctx, env.helper.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hal Renamed", stored.Name)
	assert.False(t, stored.IsActive)
	assert.False(t, stored.HelperProfile.IsVerified)
}

func TestHelperDirectory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pending := env.newHelper(t, 1, false)

	helpers, total, err := env.users.ListHelpers(ctx, "", models.NewPage(1, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, env.helper.ID, helpers[0].ID)

	_, total, err = env.users.ListHelpers(ctx, models.CategoryCare, models.NewPage(1, 10, 0))
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = env.users.ListHelpers(ctx, "gardening", models.NewPage(1, 10, 0))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.users.GetHelper(ctx, env.helper.ID)
	assert.NoError(t, err)
	_, err = env.users.GetHelper(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.users.GetHelper(ctx, env.customer.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.users.GetHelper(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
