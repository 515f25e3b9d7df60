package service

import (
	"context"
	"fmt"
	"strings"

	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"github.com/smallbiznis/cariledger/pkg/apperror"
)

// ListTransactions returns the account statement in replay order. Running
// balances always start from the first transaction, so filtered views show
// the true balance after each line.
func (s *Service) ListTransactions(ctx context.Context, accountID string, filter ledgerdomain.StatementFilter) (ledgerdomain.Statement, error) {
	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}
	id, err := parseID(accountID)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	var currency refdomain.CurrencyCode
	if strings.TrimSpace(filter.Currency) != "" {
		parsed, ok := refdomain.ParseCurrency(filter.Currency)
		if !ok {
			return ledgerdomain.Statement{}, ledgerdomain.ErrInvalidCurrency
		}
		currency = parsed
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return ledgerdomain.Statement{}, ledgerdomain.ErrInvalidDateRange
	}

	account, err := s.findAccount(ctx, s.db, orgID, id)
	if err != nil {
		return ledgerdomain.Statement{}, err
	}

	txns, err := s.repo.ListTransactions(ctx, s.db, orgID, id, ledgerdomain.TransactionFilter{IncludeVoided: true})
	if err != nil {
		return ledgerdomain.Statement{}, apperror.Storage(err)
	}

	statement := ledgerdomain.Statement{
		AccountID: id,
		Balances:  account.Balances().Normalize(),
		Lines:     make([]ledgerdomain.StatementLine, 0, len(txns)),
	}

	var running caridomain.Balances
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		signed, err := txn.SignedAmount()
		if err != nil {
			return ledgerdomain.Statement{}, corrupt(txn, err)
		}
		if !txn.IsVoided() {
			next, ok := running.Add(txn.Currency, signed)
			if !ok {
				return ledgerdomain.Statement{}, corrupt(txn, fmt.Errorf("unsupported currency %q", txn.Currency))
			}
			running = next
		}

		if !includeLine(txn, currency, filter) {
			continue
		}
		statement.Lines = append(statement.Lines, ledgerdomain.StatementLine{
			Transaction:    *txn,
			Label:          txn.Type.Label(),
			SignedAmount:   signed,
			RunningBalance: running.Get(txn.Currency),
		})
	}
	return statement, nil
}

func includeLine(txn *ledgerdomain.Transaction, currency refdomain.CurrencyCode, filter ledgerdomain.StatementFilter) bool {
	if txn.IsVoided() && !filter.IncludeVoided {
		return false
	}
	if currency != "" && txn.Currency != currency {
		return false
	}
	if filter.From != nil && txn.Date.Before(*filter.From) {
		return false
	}
	if filter.To != nil && txn.Date.After(*filter.To) {
		return false
	}
	return true
}

func (s *Service) GetBalances(ctx context.Context, accountID string) (caridomain.Balances, error) {
	orgID, err := requireOrg(ctx)
	if err != nil {
		return caridomain.Balances{}, err
	}
	id, err := parseID(accountID)
	if err != nil {
		return caridomain.Balances{}, err
	}

	account, err := s.findAccount(ctx, s.db, orgID, id)
	if err != nil {
		return caridomain.Balances{}, err
	}
	return account.Balances().Normalize(), nil
}
