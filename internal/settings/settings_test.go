package settings

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/config"
	"github.com/nmarkou/eshop/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func TestGetFallbackChain(t *testing.T) {
	db := initTestDB(t)
	r := NewResolver(db)
	ctx := context.Background()

	userID := uint(7)
	t.Setenv("theme", "env-theme")

	// environment only
	v, ok := r.Get(ctx, "theme", &userID)
	require.True(t, ok)
	require.Equal(t, "env-theme", v)

	// global setting shadows the environment
	require.NoError(t, db.Create(&models.Setting{Key: "theme", Value: "global-theme"}).Error)
	v, ok = r.Get(ctx, "theme", &userID)
	require.True(t, ok)
	require.Equal(t, "global-theme", v)

	// user setting shadows the global one
	require.NoError(t, db.Create(&models.Setting{Key: "theme", Value: "user-theme", UserID: &userID}).Error)
	v, ok = r.Get(ctx, "theme", &userID)
	require.True(t, ok)
	require.Equal(t, "user-theme", v)

	// another user still resolves the global value
	other := uint(8)
	v, ok = r.Get(ctx, "theme", &other)
	require.True(t, ok)
	require.Equal(t, "global-theme", v)

	// nil scope skips user settings entirely
	v, ok = r.Get(ctx, "theme", nil)
	require.True(t, ok)
	require.Equal(t, "global-theme", v)
}

func TestGetMissingKey(t *testing.T) {
	db := initTestDB(t)
	r := NewResolver(db)

	_, ok := r.Get(context.Background(), "no_such_key_anywhere", nil)
	require.False(t, ok)
	require.Equal(t, "fallback", r.GetDefault(context.Background(), "no_such_key_anywhere", "fallback"))
}

func TestSeedIsIdempotent(t *testing.T) {
	db := initTestDB(t)
	require.NoError(t, Seed(db))

	var count int64
	db.Model(&models.Setting{}).Count(&count)
	require.Equal(t, int64(len(seedDefaults)), count)

	// re-seeding must not duplicate or overwrite
	require.NoError(t, db.Model(&models.Setting{}).
		Where("key = ?", "tax_rate").Update("value", "0.24").Error)
	require.NoError(t, Seed(db))

	db.Model(&models.Setting{}).Count(&count)
	require.Equal(t, int64(len(seedDefaults)), count)

	r := NewResolver(db)
	require.Equal(t, "0.24", r.GetDefault(context.Background(), "tax_rate", ""))
}
