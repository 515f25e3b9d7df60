package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepository "github.com/smallbiznis/cariledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/cariledger/internal/audit/service"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	carirepository "github.com/smallbiznis/cariledger/internal/cari/repository"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	ledgerrepository "github.com/smallbiznis/cariledger/internal/ledger/repository"
	"github.com/smallbiznis/cariledger/internal/migration"
	obsmetrics "github.com/smallbiznis/cariledger/internal/observability/metrics"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	pkgdb "github.com/smallbiznis/cariledger/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	accounts caridomain.Repository
	svc      *Service
	orgID    snowflake.ID
	ctx      context.Context
}

type envOption func(*Params)

func withRepo(wrap func(ledgerdomain.Repository) ledgerdomain.Repository) envOption {
	return func(p *Params) { p.Repo = wrap(p.Repo) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	conn, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Ledger: config.DefaultLedgerConfig()}

	p := Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Config:   cfg,
		Repo:     ledgerrepository.Provide(),
		Accounts: carirepository.Provide(),
		Locker:   lock.NewLocalLocker(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB:    conn,
			Log:   zap.NewNop(),
			GenID: node,
			Repo:  auditrepository.Provide(),
			Clock: fakeClock,
		}),
		ObsMetrics: obsmetrics.NewNoop(),
		Clock:      fakeClock,
	}
	for _, opt := range opts {
		opt(&p)
	}

	orgID := node.Generate()
	return &testEnv{
		db:       conn,
		node:     node,
		clock:    fakeClock,
		accounts: p.Accounts,
		svc:      NewService(p).(*Service),
		orgID:    orgID,
		ctx:      orgcontext.WithOrgID(context.Background(), orgID),
	}
}

func (e *testEnv) createAccount(t *testing.T, name string) snowflake.ID {
	t.Helper()
	now := e.clock.Now()
	account := caridomain.Account{
		ID:        e.node.Generate(),
		OrgID:     e.orgID,
		CariCode:  "CR" + name,
		Name:      name,
		Kind:      caridomain.AccountKindCustomer,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, e.accounts.Insert(context.Background(), e.db, &account))
	return account.ID
}

func (e *testEnv) post(t *testing.T, accountID snowflake.ID, txnType ledgerdomain.TransactionType, amount string, currency refdomain.CurrencyCode) ledgerdomain.Transaction {
	t.Helper()
	txn, err := e.svc.PostTransaction(e.ctx, postRequest(accountID, txnType, amount, currency))
	require.NoError(t, err)
	return txn
}

func (e *testEnv) balances(t *testing.T, accountID snowflake.ID) caridomain.Balances {
	t.Helper()
	balances, err := e.svc.GetBalances(e.ctx, accountID.String())
	require.NoError(t, err)
	return balances
}

func postRequest(accountID snowflake.ID, txnType ledgerdomain.TransactionType, amount string, currency refdomain.CurrencyCode) ledgerdomain.PostTransactionRequest {
	return ledgerdomain.PostTransactionRequest{
		AccountID: accountID.String(),
		Type:      txnType,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Date:      ledgerdomain.NewDate(2024, time.March, 15),
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// flakyRepo injects failures into the balance writer.
type flakyRepo struct {
	ledgerdomain.Repository
	failUpdate   error
	failMark     error
	conflictLeft int
}

func (r *flakyRepo) UpdateBalances(ctx context.Context, tx *gorm.DB, orgID, accountID snowflake.ID, expectedVersion int64, balances caridomain.Balances, updatedAt time.Time) (int64, error) {
	if r.failUpdate != nil {
		return 0, r.failUpdate
	}
	if r.conflictLeft > 0 {
		r.conflictLeft--
		return 0, nil
	}
	return r.Repository.UpdateBalances(ctx, tx, orgID, accountID, expectedVersion, balances, updatedAt)
}

func (r *flakyRepo) MarkVoided(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID, voidedAt time.Time, reason *string) (int64, error) {
	if r.failMark != nil {
		return 0, r.failMark
	}
	return r.Repository.MarkVoided(ctx, tx, orgID, id, voidedAt, reason)
}
