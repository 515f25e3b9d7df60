package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
)

// AccountKind classifies the business partner behind a cari account.
type AccountKind string

const (
	AccountKindSupplier   AccountKind = "supplier"
	AccountKindCustomer   AccountKind = "customer"
	AccountKindB2BPartner AccountKind = "b2b_partner"
	AccountKindMunferit   AccountKind = "munferit"
)

// MunferitCode is the fixed code of the per-tenant walk-in account.
const MunferitCode = "MUNFERIT"

// ParseAccountKind accepts the kinds a user may assign. The munferit kind is
// reserved for provisioning.
func ParseAccountKind(value string) (AccountKind, bool) {
	switch kind := AccountKind(strings.ToLower(strings.TrimSpace(value))); kind {
	case AccountKindSupplier, AccountKindCustomer, AccountKindB2BPartner:
		return kind, true
	default:
		return "", false
	}
}

type Account struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID      `gorm:"not null;uniqueIndex:ux_cari_accounts_org_code,priority:1" json:"organization_id"`
	CariCode    string            `gorm:"type:varchar(32);not null;uniqueIndex:ux_cari_accounts_org_code,priority:2" json:"cari_code"`
	Name        string            `gorm:"type:varchar(255);not null" json:"name"`
	Kind        AccountKind       `gorm:"type:varchar(32);not null" json:"kind"`
	ContactName string            `gorm:"type:varchar(255);not null;default:''" json:"contact_name"`
	Email       string            `gorm:"type:varchar(255);not null;default:''" json:"email"`
	Phone       string            `gorm:"type:varchar(64);not null;default:''" json:"phone"`
	TaxOffice   string            `gorm:"type:varchar(255);not null;default:''" json:"tax_office"`
	TaxNumber   string            `gorm:"type:varchar(64);not null;default:''" json:"tax_number"`
	Address     string            `gorm:"type:text" json:"address"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	SearchText  string            `gorm:"type:text;not null;default:''" json:"-"`
	IsMunferit  bool              `gorm:"not null;default:false" json:"is_munferit"`
	BalanceEUR  decimal.Decimal   `gorm:"column:balance_eur;type:decimal(20,4);not null;default:0" json:"balance_eur"`
	BalanceUSD  decimal.Decimal   `gorm:"column:balance_usd;type:decimal(20,4);not null;default:0" json:"balance_usd"`
	BalanceTRY  decimal.Decimal   `gorm:"column:balance_try;type:decimal(20,4);not null;default:0" json:"balance_try"`
	Version     int64             `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "cari_accounts" }

// SearchDocument is the folded text account search matches against.
func (a Account) SearchDocument() string {
	fields := []string{a.Name, a.CariCode, a.ContactName, a.Email, a.Phone, a.TaxNumber}
	for i, field := range fields {
		fields[i] = FoldSearch(field)
	}
	return strings.Join(fields, "\n")
}

// FoldSearch lowercases value with Turkish casing rules and folds the
// dotless ı to i, so "ISTANBUL", "İstanbul" and "ıstanbul" fold alike.
func FoldSearch(value string) string {
	return strings.ReplaceAll(cases.Lower(language.Turkish).String(value), "ı", "i")
}

// Balances returns the cached per-currency balances.
func (a Account) Balances() Balances {
	return Balances{EUR: a.BalanceEUR, USD: a.BalanceUSD, TRY: a.BalanceTRY}
}

// Balances holds one signed amount per supported currency.
type Balances struct {
	EUR decimal.Decimal `json:"EUR"`
	USD decimal.Decimal `json:"USD"`
	TRY decimal.Decimal `json:"TRY"`
}

// Get returns the balance for currency. Unsupported codes yield zero.
func (b Balances) Get(currency refdomain.CurrencyCode) decimal.Decimal {
	switch currency {
	case refdomain.CurrencyEUR:
		return b.EUR
	case refdomain.CurrencyUSD:
		return b.USD
	case refdomain.CurrencyTRY:
		return b.TRY
	default:
		return decimal.Zero
	}
}

// Add returns b with delta added to currency. It reports false for
// unsupported codes and leaves b unchanged.
func (b Balances) Add(currency refdomain.CurrencyCode, delta decimal.Decimal) (Balances, bool) {
	switch currency {
	case refdomain.CurrencyEUR:
		b.EUR = b.EUR.Add(delta)
	case refdomain.CurrencyUSD:
		b.USD = b.USD.Add(delta)
	case refdomain.CurrencyTRY:
		b.TRY = b.TRY.Add(delta)
	default:
		return b, false
	}
	return b, true
}

func (b Balances) Equal(other Balances) bool {
	return b.EUR.Equal(other.EUR) && b.USD.Equal(other.USD) && b.TRY.Equal(other.TRY)
}

// Normalize rounds every balance to the stored precision.
func (b Balances) Normalize() Balances {
	return Balances{EUR: b.EUR.Round(4), USD: b.USD.Round(4), TRY: b.TRY.Round(4)}
}
