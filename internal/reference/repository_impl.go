package reference

import (
	"context"
	"database/sql"

	"github.com/smallbiznis/cariledger/internal/reference/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) ListCurrencies(ctx context.Context) ([]domain.Currency, error) {
	type row struct {
		Code      string         `gorm:"column:code"`
		Name      string         `gorm:"column:name"`
		Symbol    sql.NullString `gorm:"column:symbol"`
		MinorUnit int16          `gorm:"column:minor_unit"`
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Raw(`SELECT code, name, symbol, minor_unit FROM currencies WHERE is_active = ? ORDER BY code`, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	currencies := make([]domain.Currency, 0, len(rows))
	for _, item := range rows {
		var symbol *string
		if item.Symbol.Valid {
			value := item.Symbol.String
			symbol = &value
		}
		currencies = append(currencies, domain.Currency{
			Code:      item.Code,
			Name:      item.Name,
			Symbol:    symbol,
			MinorUnit: item.MinorUnit,
			IsActive:  true,
		})
	}

	return currencies, nil
}

// EnsureCurrencies inserts the supported currencies, leaving existing rows alone.
func (r *repository) EnsureCurrencies(ctx context.Context) error {
	rows := domain.DefaultCurrencies()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}
