// Package settings resolves configuration values through an explicit
// fallback chain: user-scoped setting, then global setting, then the
// process environment.
package settings

import (
	"context"
	"errors"
	"os"

	"gorm.io/gorm"

	"github.com/nmarkou/eshop/internal/models"
)

type Resolver struct {
	DB *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{DB: db}
}

// Get resolves key for the given user scope. userID may be nil for
// global-only resolution. The boolean reports whether any source had the key.
func (r *Resolver) Get(ctx context.Context, key string, userID *uint) (string, bool) {
	if r != nil && r.DB != nil {
		var s models.Setting

		if userID != nil {
			err := r.DB.WithContext(ctx).
				Where("key = ? AND user_id = ?", key, *userID).
				First(&s).Error
			if err == nil {
				return s.Value, true
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return "", false
			}
		}

		err := r.DB.WithContext(ctx).
			Where("key = ? AND user_id IS NULL", key).
			First(&s).Error
		if err == nil {
			return s.Value, true
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false
		}
	}

	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	return "", false
}

// GetDefault resolves a global setting, falling back to def.
func (r *Resolver) GetDefault(ctx context.Context, key, def string) string {
	if v, ok := r.Get(ctx, key, nil); ok {
		return v
	}
	return def
}

var seedDefaults = []models.Setting{
	{Key: "default_currency", Value: "EUR", Description: "Default shop currency"},
	{Key: "tax_rate", Value: "0.20", Description: "Default tax rate (20%)"},
	{Key: "max_cart_items", Value: "10", Description: "Maximum items in a cart"},
	{Key: "payment_gateway_active", Value: "true", Description: "Enable Viva payments"},
	{Key: "payment_timeout", Value: "300", Description: "Payment timeout (seconds)"},
	{Key: "default_shipping_cost", Value: "5.00", Description: "Flat shipping fee"},
	{Key: "free_shipping_threshold", Value: "50.00", Description: "Free shipping above this amount"},
}

// Seed inserts the global defaults that the shop expects to exist; settings
// already present are left untouched.
func Seed(db *gorm.DB) error {
	for _, def := range seedDefaults {
		var existing models.Setting
		err := db.Where("key = ? AND user_id IS NULL", def.Key).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Create(&def).Error; err != nil {
			return err
		}
	}
	return nil
}
