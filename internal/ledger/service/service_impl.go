package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/smallbiznis/cariledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Repo       ledgerdomain.Repository
	Accounts   caridomain.Repository
	Locker     lock.Locker
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        ledgerdomain.Repository
	accounts    caridomain.Repository
	locker      lock.Locker
	auditSvc    auditdomain.Service
	obsMetrics  *obsmetrics.Metrics
	clock       clock.Clock
	retries     int
	parallelism int
}

func NewService(p Params) ledgerdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	defaults := config.DefaultLedgerConfig()
	retries := p.Config.Ledger.PostRetryAttempts
	if retries <= 0 {
		retries = defaults.PostRetryAttempts
	}
	parallelism := p.Config.Ledger.RecalcParallelism
	if parallelism <= 0 {
		parallelism = defaults.RecalcParallelism
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		accounts:    p.Accounts,
		locker:      p.Locker,
		auditSvc:    p.AuditSvc,
		obsMetrics:  p.ObsMetrics,
		clock:       c,
		retries:     retries,
		parallelism: parallelism,
	}
}

// balanceMutation computes the next cached balances for a locked account.
// It runs inside the DB transaction and may be invoked again on retry.
type balanceMutation func(ctx context.Context, tx *gorm.DB, account *caridomain.Account) (caridomain.Balances, error)

// mutateAccount is the single path that writes cached balances. It holds
// the account lease, locks the row, applies the mutation and writes the
// result with a version check. Version conflicts restart the transaction.
func (s *Service) mutateAccount(ctx context.Context, orgID, accountID snowflake.ID, apply balanceMutation) error {
	return lock.WithAccount(ctx, s.locker, orgID, accountID, func(ctx context.Context) error {
		var err error
		for attempt := 1; attempt <= s.retries; attempt++ {
			err = rls.Transaction(ctx, s.db, int64(orgID), func(tx *gorm.DB) error {
				account, err := s.repo.LockAccount(ctx, tx, orgID, accountID)
				if err != nil {
					return err
				}
				if account == nil {
					return caridomain.ErrNotFound
				}

				next, err := apply(ctx, tx, account)
				if err != nil {
					return err
				}

				rows, err := s.repo.UpdateBalances(ctx, tx, orgID, accountID, account.Version, next, s.clock.Now().UTC())
				if err != nil {
					return err
				}
				if rows == 0 {
					return ledgerdomain.ErrVersionConflict
				}
				return nil
			})
			if !errors.Is(err, ledgerdomain.ErrVersionConflict) {
				return err
			}

			s.obsMetrics.RecordVersionConflict(ctx)
			s.log.Warn("balance version conflict, retrying",
				zap.String("account_id", accountID.String()),
				zap.Int("attempt", attempt),
			)
			if waitErr := sleepCtx(ctx, time.Duration(attempt)*10*time.Millisecond); waitErr != nil {
				return waitErr
			}
		}
		return err
	})
}

func (s *Service) findAccount(ctx context.Context, db *gorm.DB, orgID, accountID snowflake.ID) (*caridomain.Account, error) {
	account, err := s.accounts.FindByID(ctx, db, orgID, accountID)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	if account == nil {
		return nil, caridomain.ErrNotFound
	}
	return account, nil
}

func (s *Service) auditLog(ctx context.Context, orgID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, auditdomain.Entry{
		OrgID:      &orgID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func requireOrg(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, ledgerdomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, ledgerdomain.ErrInvalidID
	}
	return id, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
