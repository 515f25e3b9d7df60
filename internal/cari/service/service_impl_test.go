package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cariledger/internal/cari/domain"
	carirepository "github.com/smallbiznis/cariledger/internal/cari/repository"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	ledgerrepository "github.com/smallbiznis/cariledger/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/cariledger/internal/ledger/service"
	"github.com/smallbiznis/cariledger/internal/migration"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	pkgdb "github.com/smallbiznis/cariledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db     *gorm.DB
	svc    domain.Service
	ledger ledgerdomain.Service
	orgID  snowflake.ID
	ctx    context.Context
}

func newTestEnv(t *testing.T, codes CodeGenerator) *testEnv {
	t.Helper()

	conn, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := config.Config{Ledger: config.DefaultLedgerConfig()}
	fakeClock := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	locker := lock.NewLocalLocker()
	accounts := carirepository.Provide()
	ledgerRepo := ledgerrepository.Provide()

	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Config:  cfg,
		Repo:    accounts,
		Counter: ledgerrepository.ProvideTransactionCounter(ledgerRepo),
		Locker:  locker,
		Clock:   fakeClock,
		Codes:   codes,
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Config:   cfg,
		Repo:     ledgerRepo,
		Accounts: accounts,
		Locker:   locker,
		Clock:    fakeClock,
	})

	orgID := node.Generate()
	return &testEnv{
		db:     conn,
		svc:    svc,
		ledger: ledger,
		orgID:  orgID,
		ctx:    orgcontext.WithOrgID(context.Background(), orgID),
	}
}

func (e *testEnv) create(t *testing.T, name string, kind domain.AccountKind) domain.Account {
	t.Helper()
	account, err := e.svc.Create(e.ctx, domain.CreateAccountRequest{Name: name, Kind: string(kind)})
	require.NoError(t, err)
	return account
}

func (e *testEnv) munferit(t *testing.T) domain.Account {
	t.Helper()
	account, err := e.svc.EnsureMunferit(e.ctx, nil, e.orgID)
	require.NoError(t, err)
	return account
}

func (e *testEnv) postDebit(t *testing.T, accountID snowflake.ID, currency refdomain.CurrencyCode) ledgerdomain.Transaction {
	t.Helper()
	txn, err := e.ledger.PostTransaction(e.ctx, ledgerdomain.PostTransactionRequest{
		AccountID: accountID.String(),
		Type:      ledgerdomain.TransactionTypeDebit,
		Amount:    decimal.NewFromInt(10),
		Currency:  currency,
	})
	require.NoError(t, err)
	return txn
}

func TestCreateAssignsCodeAndZeroBalances(t *testing.T) {
	env := newTestEnv(t, nil)

	account, err := env.svc.Create(env.ctx, domain.CreateAccountRequest{
		Name:      "  Blue Voyage Travel ",
		Kind:      "B2B_PARTNER",
		Email:     "Ops@BlueVoyage.example",
		TaxNumber: "1234567890",
	})
	require.NoError(t, err)

	assert.Equal(t, "Blue Voyage Travel", account.Name)
	assert.Equal(t, domain.AccountKindB2BPartner, account.Kind)
	assert.Equal(t, "ops@bluevoyage.example", account.Email)
	assert.Regexp(t, `^CR[0-9A-Z]{8}$`, account.CariCode)
	assert.False(t, account.IsMunferit)
	assert.True(t, account.Balances().Equal(domain.Balances{}))

	stored, err := env.svc.Get(env.ctx, account.ID.String())
	require.NoError(t, err)
	assert.Equal(t, account.CariCode, stored.CariCode)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		req  domain.CreateAccountRequest
		want error
	}{
		{"empty name", domain.CreateAccountRequest{Name: "  ", Kind: "customer"}, domain.ErrInvalidName},
		{"unknown kind", domain.CreateAccountRequest{Name: "X", Kind: "employee"}, domain.ErrInvalidKind},
		{"munferit kind", domain.CreateAccountRequest{Name: "X", Kind: "munferit"}, domain.ErrInvalidKind},
		{"bad email", domain.CreateAccountRequest{Name: "X", Kind: "supplier", Email: "nope"}, domain.ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Create(env.ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := env.svc.Create(context.Background(), domain.CreateAccountRequest{Name: "X", Kind: "customer"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	codes := []string{"CRAAAAAAAA", "CRAAAAAAAA", "CRBBBBBBBB"}
	next := 0
	env := newTestEnv(t, func() string {
		code := codes[next%len(codes)]
		next++
		return code
	})

	first := env.create(t, "First", domain.AccountKindCustomer)
	second := env.create(t, "Second", domain.AccountKindCustomer)

	assert.Equal(t, "CRAAAAAAAA", first.CariCode)
	assert.Equal(t, "CRBBBBBBBB", second.CariCode)
	assert.Equal(t, 3, next)
}

func TestCreateGivesUpAfterBoundedAttempts(t *testing.T) {
	env := newTestEnv(t, func() string { return "CRSAMESAME" })
	env.create(t, "First", domain.AccountKindSupplier)

	_, err := env.svc.Create(env.ctx, domain.CreateAccountRequest{Name: "Second", Kind: "supplier"})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestMunferitIsCreatedOnceAndProtected(t *testing.T) {
	env := newTestEnv(t, nil)

	first := env.munferit(t)
	second := env.munferit(t)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.MunferitCode, first.CariCode)
	assert.True(t, first.IsMunferit)

	got, err := env.svc.GetMunferit(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	name := "Renamed"
	_, err = env.svc.Update(env.ctx, domain.UpdateAccountRequest{ID: first.ID.String(), Name: &name})
	assert.ErrorIs(t, err, domain.ErrMunferitProtected)

	err = env.svc.Delete(env.ctx, first.ID.String())
	assert.ErrorIs(t, err, domain.ErrMunferitProtected)

	env.postDebit(t, first.ID, refdomain.CurrencyTRY)
	err = env.svc.Delete(env.ctx, first.ID.String())
	assert.ErrorIs(t, err, domain.ErrMunferitProtected)

	stored, err := env.svc.Get(env.ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, first.Name, stored.Name)
}

func TestDeleteGuardsTransactionHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	empty := env.create(t, "Empty", domain.AccountKindCustomer)
	require.NoError(t, env.svc.Delete(env.ctx, empty.ID.String()))
	_, err := env.svc.Get(env.ctx, empty.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, currency := range refdomain.SupportedCurrencies() {
		account := env.create(t, "With "+string(currency), domain.AccountKindSupplier)
		env.postDebit(t, account.ID, currency)

		err := env.svc.Delete(env.ctx, account.ID.String())
		assert.ErrorIs(t, err, domain.ErrHasTransactionHistory, currency)
	}

	voidedOnly := env.create(t, "Voided only", domain.AccountKindSupplier)
	txn := env.postDebit(t, voidedOnly.ID, refdomain.CurrencyEUR)
	_, err = env.ledger.VoidTransaction(env.ctx, ledgerdomain.VoidTransactionRequest{TransactionID: txn.ID.String()})
	require.NoError(t, err)
	assert.ErrorIs(t, env.svc.Delete(env.ctx, voidedOnly.ID.String()), domain.ErrHasTransactionHistory)

	assert.ErrorIs(t, env.svc.Delete(env.ctx, "999"), domain.ErrNotFound)
}

func TestUpdateKeepsBalancesAndCode(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.create(t, "Hotel Supply", domain.AccountKindSupplier)
	env.postDebit(t, account.ID, refdomain.CurrencyEUR)

	name := "Hotel Supply Ltd"
	kind := "customer"
	phone := " +90 555 000 00 00 "
	updated, err := env.svc.Update(env.ctx, domain.UpdateAccountRequest{
		ID:    account.ID.String(),
		Name:  &name,
		Kind:  &kind,
		Phone: &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, domain.AccountKindCustomer, updated.Kind)
	assert.Equal(t, "+90 555 000 00 00", updated.Phone)
	assert.Equal(t, account.CariCode, updated.CariCode)

	stored, err := env.svc.Get(env.ctx, account.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.BalanceEUR.Equal(decimal.NewFromInt(10)))

	empty := ""
	_, err = env.svc.Update(env.ctx, domain.UpdateAccountRequest{ID: account.ID.String(), Name: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestListFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.munferit(t)

	for _, name := range []string{"Alpha Tours", "Beta Tours", "Gamma Foods", "Delta Tours", "100%_Travel"} {
		env.create(t, name, domain.AccountKindCustomer)
	}
	env.create(t, "Tour Supplier", domain.AccountKindSupplier)
	env.create(t, "ÖZTÜRK Turizm", domain.AccountKindB2BPartner)
	env.create(t, "İSTANBUL Şeker Çarşısı", domain.AccountKindB2BPartner)

	all, err := env.svc.List(env.ctx, domain.ListAccountsRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Accounts, 8)
	for _, account := range all.Accounts {
		assert.False(t, account.IsMunferit)
	}

	withMunferit, err := env.svc.List(env.ctx, domain.ListAccountsRequest{IncludeMunferit: true})
	require.NoError(t, err)
	assert.Len(t, withMunferit.Accounts, 9)

	tours, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: "TOURS"})
	require.NoError(t, err)
	assert.Len(t, tours.Accounts, 3)

	for query, want := range map[string]string{
		"ÖZTÜRK":      "ÖZTÜRK Turizm",
		"öztürk":      "ÖZTÜRK Turizm",
		"Öztürk tur":  "ÖZTÜRK Turizm",
		"istanbul":    "İSTANBUL Şeker Çarşısı",
		"ISTANBUL":    "İSTANBUL Şeker Çarşısı",
		"ıstanbul":    "İSTANBUL Şeker Çarşısı",
		"şeker çarşı": "İSTANBUL Şeker Çarşısı",
	} {
		found, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: query})
		require.NoError(t, err)
		require.Len(t, found.Accounts, 1, query)
		assert.Equal(t, want, found.Accounts[0].Name, query)
	}

	literal, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: "%_"})
	require.NoError(t, err)
	require.Len(t, literal.Accounts, 1)
	assert.Equal(t, "100%_Travel", literal.Accounts[0].Name)

	suppliers, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Kind: "supplier"})
	require.NoError(t, err)
	require.Len(t, suppliers.Accounts, 1)
	assert.Equal(t, "Tour Supplier", suppliers.Accounts[0].Name)

	page1, err := env.svc.List(env.ctx, domain.ListAccountsRequest{PageSize: 4})
	require.NoError(t, err)
	require.Len(t, page1.Accounts, 4)
	require.True(t, page1.HasMore)

	page2, err := env.svc.List(env.ctx, domain.ListAccountsRequest{PageSize: 4, PageToken: page1.NextPageToken})
	require.NoError(t, err)
	require.Len(t, page2.Accounts, 4)
	assert.False(t, page2.HasMore)
	assert.Greater(t, page2.Accounts[0].ID, page1.Accounts[3].ID)

	_, err = env.svc.List(env.ctx, domain.ListAccountsRequest{PageToken: "%%%"})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestListMatchesRenamedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	account := env.create(t, "Ege Yapı", domain.AccountKindSupplier)

	name := "ÇAĞDAŞ Yapı"
	contact := "Şule Işık"
	_, err := env.svc.Update(env.ctx, domain.UpdateAccountRequest{ID: account.ID.String(), Name: &name, ContactName: &contact})
	require.NoError(t, err)

	renamed, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: "çağdaş"})
	require.NoError(t, err)
	require.Len(t, renamed.Accounts, 1)
	assert.Equal(t, account.ID, renamed.Accounts[0].ID)

	byContact, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: "ŞULE ışık"})
	require.NoError(t, err)
	assert.Len(t, byContact.Accounts, 1)

	stale, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: "ege yapı"})
	require.NoError(t, err)
	assert.Empty(t, stale.Accounts)

	byCode, err := env.svc.List(env.ctx, domain.ListAccountsRequest{Query: strings.ToLower(account.CariCode)})
	require.NoError(t, err)
	assert.Len(t, byCode.Accounts, 1)
}
