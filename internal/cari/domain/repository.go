package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListAccountFilter struct {
	Query           string
	Kind            AccountKind
	IncludeMunferit bool
	AfterID         snowflake.ID
	Limit           int
}

// Repository persists account profiles. Balance columns are written only by
// the ledger.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Account, error)
	FindMunferit(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*Account, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, account *Account) error
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListAccountFilter) ([]*Account, error)
}

// TransactionCounter reports how many ledger rows reference an account,
// voided rows included.
type TransactionCounter interface {
	CountByAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (int64, error)
}
