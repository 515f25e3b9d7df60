package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
)

type PostTransactionRequest struct {
	AccountID   string                 `json:"-"`
	Type        TransactionType        `json:"transaction_type"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    refdomain.CurrencyCode `json:"currency"`
	Date        Date                   `json:"date"`
	Description string                 `json:"description"`
	SourceType  SourceType             `json:"source_type"`
	SourceID    string                 `json:"source_id"`
}

type VoidTransactionRequest struct {
	TransactionID string `json:"-"`
	Reason        string `json:"reason"`
}

type StatementFilter struct {
	Currency      string
	From          *Date
	To            *Date
	IncludeVoided bool
}

// StatementLine is a transaction with its position in the running balance.
// RunningBalance is the account's balance in the line's currency after it;
// voided lines carry the balance unchanged.
type StatementLine struct {
	Transaction
	Label          string          `json:"label"`
	SignedAmount   decimal.Decimal `json:"signed_amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type Statement struct {
	AccountID snowflake.ID        `json:"account_id"`
	Balances  caridomain.Balances `json:"balances"`
	Lines     []StatementLine     `json:"transactions"`
}

type RecalculateResult struct {
	AccountID snowflake.ID        `json:"account_id"`
	Previous  caridomain.Balances `json:"previous"`
	Balances  caridomain.Balances `json:"balances"`
	Changed   bool                `json:"changed"`
}

// AccountFailure names an account a batch operation skipped and why.
type AccountFailure struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

type RecalculateAllResult struct {
	Succeeded []string             `json:"succeeded"`
	Failed    []AccountFailure `json:"failed"`
}

type CurrencyDrift struct {
	Currency refdomain.CurrencyCode `json:"currency"`
	Cached   decimal.Decimal        `json:"cached"`
	Computed decimal.Decimal        `json:"computed"`
	Drift    decimal.Decimal        `json:"drift"`
}

type DriftReport struct {
	AccountID snowflake.ID    `json:"account_id"`
	HasDrift  bool            `json:"has_drift"`
	Balances  []CurrencyDrift `json:"balances"`
}

// DriftSweep is the drift check of a whole tenant. Accounts that cannot be
// replayed are listed in Failed and do not hide the reports of the others.
type DriftSweep struct {
	Reports []DriftReport    `json:"reports"`
	Failed  []AccountFailure `json:"failed"`
}

// Drifted returns the reports whose cache disagrees with the ledger.
func (s DriftSweep) Drifted() []DriftReport {
	var drifted []DriftReport
	for _, report := range s.Reports {
		if report.HasDrift {
			drifted = append(drifted, report)
		}
	}
	return drifted
}

// Service is the balance engine. It is the only component that changes
// cached account balances.
type Service interface {
	PostTransaction(ctx context.Context, req PostTransactionRequest) (Transaction, error)
	VoidTransaction(ctx context.Context, req VoidTransactionRequest) (Transaction, error)
	RecalculateBalance(ctx context.Context, accountID string) (RecalculateResult, error)
	RecalculateAllBalances(ctx context.Context) (RecalculateAllResult, error)

	ListTransactions(ctx context.Context, accountID string, filter StatementFilter) (Statement, error)
	GetBalances(ctx context.Context, accountID string) (caridomain.Balances, error)
	CheckDrift(ctx context.Context, accountID string) (DriftReport, error)
	CheckAllDrift(ctx context.Context) (DriftSweep, error)
}
