package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	"github.com/smallbiznis/cariledger/internal/observability/tracing"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// replay sums committed transactions in replay order. Rows that cannot be
// interpreted fail the whole replay.
func replay(txns []*ledgerdomain.Transaction) (caridomain.Balances, error) {
	var balances caridomain.Balances
	for _, txn := range txns {
		if txn == nil || txn.IsVoided() {
			continue
		}
		if !txn.Amount.IsPositive() {
			return caridomain.Balances{}, corrupt(txn, fmt.Errorf("non-positive amount %s", txn.Amount))
		}
		delta, err := txn.SignedAmount()
		if err != nil {
			return caridomain.Balances{}, corrupt(txn, err)
		}
		if _, ok := refdomain.ParseCurrency(string(txn.Currency)); !ok {
			return caridomain.Balances{}, corrupt(txn, fmt.Errorf("unsupported currency %q", txn.Currency))
		}
		balances, _ = balances.Add(txn.Currency, delta)
	}
	return balances.Normalize(), nil
}

func (s *Service) RecalculateBalance(ctx context.Context, accountID string) (result ledgerdomain.RecalculateResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.RecalculateBalance")
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.RecalculateResult{}, err
	}
	id, err := parseID(accountID)
	if err != nil {
		return ledgerdomain.RecalculateResult{}, err
	}

	result, err = s.recalculate(ctx, orgID, id)
	if err != nil {
		return ledgerdomain.RecalculateResult{}, err
	}

	s.auditLog(ctx, orgID, auditdomain.ActionBalanceRecalculated, auditdomain.TargetAccount, id.String(), map[string]any{
		"changed":  result.Changed,
		"previous": balanceMetadata(result.Previous),
		"balances": balanceMetadata(result.Balances),
	})
	return result, nil
}

// recalculate replaces the cached balances of one account with the replay
// of its committed transactions.
func (s *Service) recalculate(ctx context.Context, orgID, accountID snowflake.ID) (ledgerdomain.RecalculateResult, error) {
	result := ledgerdomain.RecalculateResult{AccountID: accountID}
	err := s.mutateAccount(ctx, orgID, accountID, func(ctx context.Context, tx *gorm.DB, account *caridomain.Account) (caridomain.Balances, error) {
		txns, err := s.repo.ListTransactions(ctx, tx, orgID, accountID, ledgerdomain.TransactionFilter{})
		if err != nil {
			return caridomain.Balances{}, err
		}
		computed, err := replay(txns)
		if err != nil {
			return caridomain.Balances{}, err
		}
		result.Previous = account.Balances().Normalize()
		result.Balances = computed
		result.Changed = !result.Previous.Equal(computed)
		return computed, nil
	})
	if err != nil {
		s.obsMetrics.RecordRecalculation(ctx, "failed")
		return ledgerdomain.RecalculateResult{}, apperror.Storage(err)
	}

	s.obsMetrics.RecordRecalculation(ctx, "ok")
	if result.Changed {
		s.log.Warn("cached balance corrected",
			zap.String("account_id", accountID.String()),
			zap.String("previous_eur", result.Previous.EUR.String()),
			zap.String("previous_usd", result.Previous.USD.String()),
			zap.String("previous_try", result.Previous.TRY.String()),
		)
	}
	return result, nil
}

// RecalculateAllBalances recalculates every account of the tenant. Each
// account is isolated: a failure is recorded and the batch continues.
func (s *Service) RecalculateAllBalances(ctx context.Context) (result ledgerdomain.RecalculateAllResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.RecalculateAllBalances")
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.RecalculateAllResult{}, err
	}

	ids, err := s.repo.ListAccountIDs(ctx, s.db, orgID)
	if err != nil {
		return ledgerdomain.RecalculateAllResult{}, apperror.Storage(err)
	}
	span.SetAttributes(attribute.Int("accounts", len(ids)))

	failures := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			_, failures[i] = s.recalculate(ctx, orgID, id)
			return nil
		})
	}
	_ = g.Wait()

	result = ledgerdomain.RecalculateAllResult{
		Succeeded: make([]string, 0, len(ids)),
		Failed:    make([]ledgerdomain.AccountFailure, 0),
	}
	for i, id := range ids {
		if failures[i] != nil {
			s.log.Error("balance recalculation failed",
				zap.String("account_id", id.String()),
				zap.Error(failures[i]),
			)
			result.Failed = append(result.Failed, ledgerdomain.AccountFailure{
				AccountID: id.String(),
				Reason:    failures[i].Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, id.String())
	}

	s.log.Info("balances recalculated",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	s.auditLog(ctx, orgID, auditdomain.ActionBalancesRecalculated, auditdomain.TargetAccount, "", map[string]any{
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	})
	return result, nil
}

// CheckDrift compares cached balances with a replay without writing.
func (s *Service) CheckDrift(ctx context.Context, accountID string) (ledgerdomain.DriftReport, error) {
	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.DriftReport{}, err
	}
	id, err := parseID(accountID)
	if err != nil {
		return ledgerdomain.DriftReport{}, err
	}
	return s.checkDrift(ctx, orgID, id)
}

func (s *Service) checkDrift(ctx context.Context, orgID, accountID snowflake.ID) (ledgerdomain.DriftReport, error) {
	var report ledgerdomain.DriftReport
	err := lock.WithAccount(ctx, s.locker, orgID, accountID, func(ctx context.Context) error {
		account, err := s.findAccount(ctx, s.db, orgID, accountID)
		if err != nil {
			return err
		}
		txns, err := s.repo.ListTransactions(ctx, s.db, orgID, accountID, ledgerdomain.TransactionFilter{})
		if err != nil {
			return apperror.Storage(err)
		}
		computed, err := replay(txns)
		if err != nil {
			return err
		}
		report = buildDriftReport(accountID, account.Balances().Normalize(), computed)
		return nil
	})
	if err != nil {
		return ledgerdomain.DriftReport{}, err
	}

	for _, line := range report.Balances {
		if !line.Drift.IsZero() {
			s.obsMetrics.RecordDrift(ctx, string(line.Currency))
		}
	}
	return report, nil
}

func buildDriftReport(accountID snowflake.ID, cached, computed caridomain.Balances) ledgerdomain.DriftReport {
	report := ledgerdomain.DriftReport{AccountID: accountID}
	for _, currency := range refdomain.SupportedCurrencies() {
		line := ledgerdomain.CurrencyDrift{
			Currency: currency,
			Cached:   cached.Get(currency),
			Computed: computed.Get(currency),
		}
		line.Drift = line.Cached.Sub(line.Computed)
		if !line.Drift.IsZero() {
			report.HasDrift = true
		}
		report.Balances = append(report.Balances, line)
	}
	return report
}

// CheckAllDrift checks every account of the tenant. An account whose rows
// cannot be replayed is recorded in Failed and the sweep continues.
func (s *Service) CheckAllDrift(ctx context.Context) (ledgerdomain.DriftSweep, error) {
	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.DriftSweep{}, err
	}

	ids, err := s.repo.ListAccountIDs(ctx, s.db, orgID)
	if err != nil {
		return ledgerdomain.DriftSweep{}, apperror.Storage(err)
	}

	reports := make([]ledgerdomain.DriftReport, len(ids))
	failures := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			reports[i], failures[i] = s.checkDrift(ctx, orgID, id)
			return nil
		})
	}
	_ = g.Wait()

	sweep := ledgerdomain.DriftSweep{
		Reports: make([]ledgerdomain.DriftReport, 0, len(ids)),
		Failed:  make([]ledgerdomain.AccountFailure, 0),
	}
	for i, id := range ids {
		if failures[i] != nil {
			s.log.Error("drift check failed",
				zap.String("account_id", id.String()),
				zap.Error(failures[i]),
			)
			sweep.Failed = append(sweep.Failed, ledgerdomain.AccountFailure{
				AccountID: id.String(),
				Reason:    failures[i].Error(),
			})
			continue
		}
		sweep.Reports = append(sweep.Reports, reports[i])
	}
	return sweep, nil
}

func balanceMetadata(b caridomain.Balances) map[string]any {
	return map[string]any{
		"EUR": b.EUR.StringFixed(4),
		"USD": b.USD.StringFixed(4),
		"TRY": b.TRY.StringFixed(4),
	}
}
