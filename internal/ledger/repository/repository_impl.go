package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/ledger/domain"
	pkgdb "github.com/smallbiznis/cariledger/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const transactionColumns = `id, org_id, account_id, transaction_type, amount, currency, transaction_date, description,
	source_type, source_id, sequence, status, voided_at, void_reason, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ProvideTransactionCounter exposes the transaction count to the account manager.
func ProvideTransactionCounter(r domain.Repository) caridomain.TransactionCounter {
	return r
}

func (r *repo) LockAccount(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID) (*caridomain.Account, error) {
	var account caridomain.Account
	stmt := tx.WithContext(ctx)
	if tx.Dialector.Name() != pkgdb.DialectSQLite {
		stmt = stmt.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	err := stmt.
		Where("org_id = ? AND id = ?", orgID, accountID).
		Limit(1).
		Find(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) UpdateBalances(
	ctx context.Context,
	tx *gorm.DB,
	orgID, accountID snowflake.ID,
	expectedVersion int64,
	balances caridomain.Balances,
	updatedAt time.Time,
) (int64, error) {
	balances = balances.Normalize()
	result := tx.WithContext(ctx).Exec(
		`UPDATE cari_accounts
		 SET balance_eur = ?, balance_usd = ?, balance_try = ?, version = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND version = ?`,
		balances.EUR,
		balances.USD,
		balances.TRY,
		expectedVersion+1,
		updatedAt,
		orgID,
		accountID,
		expectedVersion,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *domain.Transaction) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO cari_transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.OrgID,
		txn.AccountID,
		txn.Type,
		txn.Amount,
		txn.Currency,
		txn.Date,
		txn.Description,
		txn.SourceType,
		txn.SourceID,
		txn.Sequence,
		txn.Status,
		txn.VoidedAt,
		txn.VoidReason,
		txn.CreatedAt,
	).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM cari_transactions WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

// MarkVoided flips a committed row to voided. Zero rows means it was
// already voided or does not exist.
func (r *repo) MarkVoided(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, voidedAt time.Time, reason *string) (int64, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE cari_transactions SET status = ?, voided_at = ?, void_reason = ?
		 WHERE org_id = ? AND id = ? AND status = ?`,
		domain.TransactionStatusVoided,
		voidedAt,
		reason,
		orgID,
		id,
		domain.TransactionStatusCommitted,
	)
	return result.RowsAffected, result.Error
}

// ListTransactions returns the account's rows in replay order.
func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("org_id = ? AND account_id = ?", orgID, accountID)
	if !filter.IncludeVoided {
		stmt = stmt.Where("status = ?", domain.TransactionStatusCommitted)
	}
	err := stmt.Order("transaction_date asc, sequence asc").Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repo) CountByAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("org_id = ? AND account_id = ?", orgID, accountID).
		Count(&count).Error
	return count, err
}

func (r *repo) ListAccountIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&caridomain.Account{}).
		Where("org_id = ?", orgID).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
