package domain

import (
	"strings"
	"time"
)

// CurrencyCode is an ISO 4217 code the ledger keeps a balance for.
type CurrencyCode string

const (
	CurrencyEUR CurrencyCode = "EUR"
	CurrencyUSD CurrencyCode = "USD"
	CurrencyTRY CurrencyCode = "TRY"
)

// SupportedCurrencies lists every currency an account carries a balance in,
// in display order.
func SupportedCurrencies() []CurrencyCode {
	return []CurrencyCode{CurrencyEUR, CurrencyUSD, CurrencyTRY}
}

// ParseCurrency normalizes code and reports whether it is supported.
func ParseCurrency(code string) (CurrencyCode, bool) {
	c := CurrencyCode(strings.ToUpper(strings.TrimSpace(code)))
	switch c {
	case CurrencyEUR, CurrencyUSD, CurrencyTRY:
		return c, true
	default:
		return "", false
	}
}

func (c CurrencyCode) Valid() bool {
	_, ok := ParseCurrency(string(c))
	return ok && string(c) == strings.TrimSpace(string(c))
}

func (c CurrencyCode) String() string { return string(c) }

type Currency struct {
	Code      string    `json:"code" gorm:"type:char(3);primaryKey;column:code"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	Symbol    *string   `json:"symbol,omitempty" gorm:"type:text"`
	MinorUnit int16     `json:"minor_unit" gorm:"type:smallint;not null"`
	IsActive  bool      `json:"is_active,omitempty" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Currency) TableName() string { return "currencies" }

// DefaultCurrencies is the reference data seeded on startup.
func DefaultCurrencies() []Currency {
	symbol := func(s string) *string { return &s }
	return []Currency{
		{Code: string(CurrencyEUR), Name: "Euro", Symbol: symbol("€"), MinorUnit: 2, IsActive: true},
		{Code: string(CurrencyUSD), Name: "US Dollar", Symbol: symbol("$"), MinorUnit: 2, IsActive: true},
		{Code: string(CurrencyTRY), Name: "Turkish Lira", Symbol: symbol("₺"), MinorUnit: 2, IsActive: true},
	}
}
