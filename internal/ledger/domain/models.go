package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
)

// TransactionType is the closed set of balance-affecting events.
type TransactionType string

const (
	TransactionTypeDebit   TransactionType = "debit"
	TransactionTypeCredit  TransactionType = "credit"
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeRefund  TransactionType = "refund"
)

// TransactionTypes lists every declared type.
func TransactionTypes() []TransactionType {
	return []TransactionType{
		TransactionTypeDebit,
		TransactionTypeCredit,
		TransactionTypePayment,
		TransactionTypeRefund,
	}
}

func ParseTransactionType(value string) (TransactionType, bool) {
	t := TransactionType(strings.ToLower(strings.TrimSpace(value)))
	if _, err := t.Sign(); err != nil {
		return "", false
	}
	return t, true
}

// Sign is the only place the direction of a transaction type is defined.
// A balance is what the tenant owes the account holder: debit and refund
// raise it, credit and payment lower it.
func (t TransactionType) Sign() (int, error) {
	switch t {
	case TransactionTypeDebit:
		return 1, nil
	case TransactionTypeCredit:
		return -1, nil
	case TransactionTypePayment:
		return -1, nil
	case TransactionTypeRefund:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTransactionType, string(t))
	}
}

// SignedAmount applies the type's sign to a positive amount.
func (t TransactionType) SignedAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	sign, err := t.Sign()
	if err != nil {
		return decimal.Zero, err
	}
	if sign < 0 {
		return amount.Neg(), nil
	}
	return amount, nil
}

// Label is the statement caption shown to bookkeepers.
func (t TransactionType) Label() string {
	switch t {
	case TransactionTypeDebit:
		return "Borç"
	case TransactionTypeCredit:
		return "Alacak"
	case TransactionTypePayment:
		return "Ödeme"
	case TransactionTypeRefund:
		return "İade"
	default:
		return string(t)
	}
}

type TransactionStatus string

const (
	TransactionStatusCommitted TransactionStatus = "committed"
	TransactionStatusVoided    TransactionStatus = "voided"
)

// SourceType links a transaction to the business event that produced it.
type SourceType string

const (
	SourceTypeReservation      SourceType = "reservation"
	SourceTypeServicePurchase  SourceType = "service_purchase"
	SourceTypeManualAdjustment SourceType = "manual_adjustment"
	SourceTypeB2BPayment       SourceType = "b2b_payment"
)

func ParseSourceType(value string) (SourceType, bool) {
	switch s := SourceType(strings.ToLower(strings.TrimSpace(value))); s {
	case SourceTypeReservation, SourceTypeServicePurchase, SourceTypeManualAdjustment, SourceTypeB2BPayment:
		return s, true
	default:
		return "", false
	}
}

// Transaction is an immutable ledger row. Only Status, VoidedAt and
// VoidReason change, once, when it is voided.
type Transaction struct {
	ID          snowflake.ID           `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID           `gorm:"not null;index:ix_cari_transactions_account,priority:1" json:"organization_id"`
	AccountID   snowflake.ID           `gorm:"not null;index:ix_cari_transactions_account,priority:2;uniqueIndex:ux_cari_transactions_account_seq,priority:1" json:"account_id"`
	Type        TransactionType        `gorm:"column:transaction_type;type:varchar(16);not null" json:"transaction_type"`
	Amount      decimal.Decimal        `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency    refdomain.CurrencyCode `gorm:"type:char(3);not null" json:"currency"`
	Date        Date                   `gorm:"column:transaction_date;type:date;not null" json:"date"`
	Description string                 `gorm:"type:text" json:"description"`
	SourceType  *SourceType            `gorm:"type:varchar(32)" json:"source_type,omitempty"`
	SourceID    *string                `gorm:"type:varchar(64)" json:"source_id,omitempty"`
	Sequence    int64                  `gorm:"not null;uniqueIndex:ux_cari_transactions_account_seq,priority:2" json:"sequence"`
	Status      TransactionStatus      `gorm:"type:varchar(16);not null" json:"status"`
	VoidedAt    *time.Time             `json:"voided_at,omitempty"`
	VoidReason  *string                `gorm:"type:text" json:"void_reason,omitempty"`
	CreatedAt   time.Time              `gorm:"not null" json:"created_at"`
}

func (Transaction) TableName() string { return "cari_transactions" }

func (t Transaction) IsVoided() bool { return t.Status == TransactionStatusVoided }

// SignedAmount is the balance delta this transaction contributes.
func (t Transaction) SignedAmount() (decimal.Decimal, error) {
	return t.Type.SignedAmount(t.Amount)
}
