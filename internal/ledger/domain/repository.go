package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"gorm.io/gorm"
)

type TransactionFilter struct {
	IncludeVoided bool
}

// Repository is the single writer of cached balance columns.
type Repository interface {
	// LockAccount reads the account row with a row lock held until tx ends.
	LockAccount(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID) (*caridomain.Account, error)
	// UpdateBalances replaces the cached balances when the stored version
	// still equals expectedVersion. It returns the number of rows changed.
	UpdateBalances(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID, expectedVersion int64, balances caridomain.Balances, updatedAt time.Time) (int64, error)

	InsertTransaction(ctx context.Context, tx *gorm.DB, txn *Transaction) error
	FindTransaction(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Transaction, error)
	MarkVoided(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, voidedAt time.Time, reason *string) (int64, error)
	ListTransactions(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, filter TransactionFilter) ([]*Transaction, error)
	CountByAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (int64, error)

	ListAccountIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error)
}
