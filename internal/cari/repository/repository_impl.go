package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/internal/cari/domain"
	"gorm.io/gorm"
)

const accountColumns = `id, org_id, cari_code, name, kind, contact_name, email, phone, tax_office, tax_number,
	address, metadata, search_text, is_munferit, balance_eur, balance_usd, balance_try, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	account.SearchText = account.SearchDocument()
	return db.WithContext(ctx).Exec(
		`INSERT INTO cari_accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OrgID,
		account.CariCode,
		account.Name,
		account.Kind,
		account.ContactName,
		account.Email,
		account.Phone,
		account.TaxOffice,
		account.TaxNumber,
		account.Address,
		account.Metadata,
		account.SearchText,
		account.IsMunferit,
		account.BalanceEUR,
		account.BalanceUSD,
		account.BalanceTRY,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM cari_accounts WHERE org_id = ? AND id = ?`,
		orgID,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindMunferit(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM cari_accounts WHERE org_id = ? AND is_munferit = ?`,
		orgID,
		true,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

// UpdateProfile writes contact and classification fields and refreshes the
// search text. Balances and the cari code are left untouched.
func (r *repo) UpdateProfile(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	account.SearchText = account.SearchDocument()
	return db.WithContext(ctx).Exec(
		`UPDATE cari_accounts
		 SET name = ?, kind = ?, contact_name = ?, email = ?, phone = ?, tax_office = ?, tax_number = ?,
		     address = ?, metadata = ?, search_text = ?, updated_at = ?
		 WHERE org_id = ? AND id = ? AND is_munferit = ?`,
		account.Name,
		account.Kind,
		account.ContactName,
		account.Email,
		account.Phone,
		account.TaxOffice,
		account.TaxNumber,
		account.Address,
		account.Metadata,
		account.SearchText,
		account.UpdatedAt,
		account.OrgID,
		account.ID,
		false,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM cari_accounts WHERE org_id = ? AND id = ? AND is_munferit = ?`,
		orgID,
		id,
		false,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListAccountFilter) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("org_id = ?", orgID)
	if !filter.IncludeMunferit {
		stmt = stmt.Where("is_munferit = ?", false)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	// search_text is folded in Go, so matching does not depend on how the
	// dialect lowercases non-ASCII letters.
	if q := domain.FoldSearch(strings.TrimSpace(filter.Query)); q != "" {
		stmt = stmt.Where("search_text LIKE ? ESCAPE '!'", "%"+escapeLike(q)+"%")
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	err := stmt.Order("id asc").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(value)
}
