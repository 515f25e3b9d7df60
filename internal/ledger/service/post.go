package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/observability/logger"
	"github.com/smallbiznis/cariledger/internal/observability/tracing"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var maxAmount = decimal.RequireFromString(ledgerdomain.MaxAmount)

func (s *Service) PostTransaction(ctx context.Context, req ledgerdomain.PostTransactionRequest) (txn ledgerdomain.Transaction, err error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.PostTransaction",
		attribute.String("transaction_type", string(req.Type)),
		attribute.String("currency", string(req.Currency)),
	)
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	accountID, err := parseID(req.AccountID)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	draft, err := s.validatePost(req)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	delta, err := draft.Type.SignedAmount(draft.Amount)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}

	err = s.mutateAccount(ctx, orgID, accountID, func(ctx context.Context, tx *gorm.DB, account *caridomain.Account) (caridomain.Balances, error) {
		next, ok := account.Balances().Add(draft.Currency, delta)
		if !ok {
			return caridomain.Balances{}, ledgerdomain.ErrInvalidCurrency
		}

		txn = draft
		txn.ID = s.genID.Generate()
		txn.OrgID = orgID
		txn.AccountID = accountID
		txn.Sequence = account.Version + 1
		txn.Status = ledgerdomain.TransactionStatusCommitted
		txn.CreatedAt = s.clock.Now().UTC()

		if err := s.repo.InsertTransaction(ctx, tx, &txn); err != nil {
			return caridomain.Balances{}, err
		}
		return next, nil
	})
	if err != nil {
		return ledgerdomain.Transaction{}, apperror.Storage(err)
	}

	s.obsMetrics.RecordTransaction(ctx, string(txn.Type), string(txn.Currency))
	logger.WithContext(ctx, s.log).Info("cari transaction posted",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("account_id", accountID.String()),
		zap.String("transaction_type", string(txn.Type)),
		zap.String("currency", string(txn.Currency)),
		zap.Int64("sequence", txn.Sequence),
	)
	s.auditLog(ctx, orgID, auditdomain.ActionTransactionPosted, auditdomain.TargetTransaction, txn.ID.String(), map[string]any{
		"account_id":       accountID.String(),
		"transaction_type": string(txn.Type),
		"amount":           txn.Amount.StringFixed(4),
		"currency":         string(txn.Currency),
		"date":             txn.Date.String(),
		"sequence":         txn.Sequence,
	})
	return txn, nil
}

// validatePost checks the request and returns a draft with normalized fields.
func (s *Service) validatePost(req ledgerdomain.PostTransactionRequest) (ledgerdomain.Transaction, error) {
	txnType, ok := ledgerdomain.ParseTransactionType(string(req.Type))
	if !ok {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidTransactionType
	}

	if !req.Amount.IsPositive() || req.Amount.GreaterThan(maxAmount) {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidAmount
	}
	if !req.Amount.Equal(req.Amount.Round(4)) {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidAmountPrecision
	}

	currency, ok := refdomain.ParseCurrency(string(req.Currency))
	if !ok {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidCurrency
	}

	date := req.Date
	if date.IsZero() {
		date = ledgerdomain.DateOf(s.clock.Now().UTC())
	}

	description := strings.TrimSpace(req.Description)
	if utf8.RuneCountInString(description) > ledgerdomain.MaxDescriptionLength {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrDescriptionTooLong
	}

	draft := ledgerdomain.Transaction{
		Type:        txnType,
		Amount:      req.Amount.Round(4),
		Currency:    currency,
		Date:        date,
		Description: description,
	}

	sourceID := strings.TrimSpace(req.SourceID)
	if strings.TrimSpace(string(req.SourceType)) == "" {
		if sourceID != "" {
			return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidSourceID
		}
		return draft, nil
	}
	sourceType, ok := ledgerdomain.ParseSourceType(string(req.SourceType))
	if !ok {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrInvalidSourceType
	}
	draft.SourceType = &sourceType
	if sourceID != "" {
		draft.SourceID = &sourceID
	}
	return draft, nil
}

// VoidTransaction marks a committed transaction voided and reverses its
// effect on the cached balance in the same DB transaction.
func (s *Service) VoidTransaction(ctx context.Context, req ledgerdomain.VoidTransactionRequest) (txn ledgerdomain.Transaction, err error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.VoidTransaction")
	defer func() { tracing.EndSpan(span, err) }()

	orgID, err := requireOrg(ctx)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}
	txnID, err := parseID(req.TransactionID)
	if err != nil {
		return ledgerdomain.Transaction{}, err
	}

	existing, err := s.repo.FindTransaction(ctx, s.db, orgID, txnID)
	if err != nil {
		return ledgerdomain.Transaction{}, apperror.Storage(err)
	}
	if existing == nil {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrTransactionNotFound
	}
	if existing.IsVoided() {
		return ledgerdomain.Transaction{}, ledgerdomain.ErrAlreadyVoided
	}

	var reason *string
	if trimmed := strings.TrimSpace(req.Reason); trimmed != "" {
		if utf8.RuneCountInString(trimmed) > ledgerdomain.MaxDescriptionLength {
			return ledgerdomain.Transaction{}, ledgerdomain.ErrDescriptionTooLong
		}
		reason = &trimmed
	}

	err = s.mutateAccount(ctx, orgID, existing.AccountID, func(ctx context.Context, tx *gorm.DB, account *caridomain.Account) (caridomain.Balances, error) {
		current, err := s.repo.FindTransaction(ctx, tx, orgID, txnID)
		if err != nil {
			return caridomain.Balances{}, err
		}
		if current == nil {
			return caridomain.Balances{}, ledgerdomain.ErrTransactionNotFound
		}
		if current.IsVoided() {
			return caridomain.Balances{}, ledgerdomain.ErrAlreadyVoided
		}

		delta, err := current.SignedAmount()
		if err != nil {
			return caridomain.Balances{}, corrupt(current, err)
		}
		next, ok := account.Balances().Add(current.Currency, delta.Neg())
		if !ok {
			return caridomain.Balances{}, corrupt(current, fmt.Errorf("unsupported currency %q", current.Currency))
		}

		voidedAt := s.clock.Now().UTC()
		rows, err := s.repo.MarkVoided(ctx, tx, orgID, txnID, voidedAt, reason)
		if err != nil {
			return caridomain.Balances{}, err
		}
		if rows == 0 {
			return caridomain.Balances{}, ledgerdomain.ErrAlreadyVoided
		}

		txn = *current
		txn.Status = ledgerdomain.TransactionStatusVoided
		txn.VoidedAt = &voidedAt
		txn.VoidReason = reason
		return next, nil
	})
	if err != nil {
		return ledgerdomain.Transaction{}, apperror.Storage(err)
	}

	s.obsMetrics.RecordVoid(ctx, string(txn.Currency))
	logger.WithContext(ctx, s.log).Info("cari transaction voided",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("account_id", txn.AccountID.String()),
	)
	metadata := map[string]any{
		"account_id":       txn.AccountID.String(),
		"transaction_type": string(txn.Type),
		"amount":           txn.Amount.StringFixed(4),
		"currency":         string(txn.Currency),
	}
	if reason != nil {
		metadata["reason"] = *reason
	}
	s.auditLog(ctx, orgID, auditdomain.ActionTransactionVoided, auditdomain.TargetTransaction, txn.ID.String(), metadata)
	return txn, nil
}

func corrupt(txn *ledgerdomain.Transaction, cause error) error {
	var id snowflake.ID
	if txn != nil {
		id = txn.ID
	}
	return apperror.Wrap(ledgerdomain.ErrCorruptTransaction, fmt.Errorf("transaction %s: %w", id, cause))
}
