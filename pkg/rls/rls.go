// Package rls scopes a PostgreSQL transaction to a tenant for row level security.
package rls

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Setting is the session variable the row level security policies read.
const Setting = "app.current_org_id"

// WithTenant sets app.current_org_id for the rest of tx. Other dialects have
// no row level security and are left untouched.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('"+Setting+"', ?, true)",
		fmt.Sprintf("%d", tenantID),
	).Error
}

// Transaction runs fn in a transaction scoped to tenantID. Called on an open
// transaction it nests through a savepoint.
func Transaction(ctx context.Context, db *gorm.DB, tenantID int64, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := WithTenant(tx, tenantID); err != nil {
			return err
		}
		return fn(tx)
	})
}
