package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	auditrepository "github.com/smallbiznis/cariledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/cariledger/internal/audit/service"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	carirepository "github.com/smallbiznis/cariledger/internal/cari/repository"
	cariservice "github.com/smallbiznis/cariledger/internal/cari/service"
	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	ledgerrepository "github.com/smallbiznis/cariledger/internal/ledger/repository"
	"github.com/smallbiznis/cariledger/internal/migration"
	"github.com/smallbiznis/cariledger/internal/organization/domain"
	"github.com/smallbiznis/cariledger/internal/organization/repository"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	pkgdb "github.com/smallbiznis/cariledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupOrganizationService(t *testing.T) (domain.Service, caridomain.Service, *gorm.DB) {
	t.Helper()

	conn, err := pkgdb.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	cari := cariservice.New(cariservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Config:  config.Config{Ledger: config.DefaultLedgerConfig()},
		Repo:    carirepository.Provide(),
		Counter: ledgerrepository.ProvideTransactionCounter(ledgerrepository.Provide()),
		Locker:  lock.NewLocalLocker(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repository.NewRepository(conn),
		GenID: node,
		Cari:  cari,
		Audit: audit,
	})
	return svc, cari, conn
}

func TestProvisionCreatesMunferit(t *testing.T) {
	svc, cari, conn := setupOrganizationService(t)

	org, err := svc.Provision(context.Background(), domain.ProvisionRequest{Name: "Kapadokya Balon Turları"})
	require.NoError(t, err)
	assert.Equal(t, "kapadokya-balon-turlari", org.Slug)
	require.NotEmpty(t, org.MunferitAccountID)

	orgID, err := snowflake.ParseString(org.ID)
	require.NoError(t, err)
	munferit, err := cari.GetMunferit(orgcontext.WithOrgID(context.Background(), orgID))
	require.NoError(t, err)
	assert.Equal(t, org.MunferitAccountID, munferit.ID.String())
	assert.Equal(t, caridomain.AccountKindMunferit, munferit.Kind)

	var actions []string
	require.NoError(t, conn.Model(&auditdomain.AuditLog{}).Pluck("action", &actions).Error)
	assert.Equal(t, []string{auditdomain.ActionOrganizationProvision}, actions)
}

func TestProvisionSuffixesDuplicateSlug(t *testing.T) {
	svc, _, _ := setupOrganizationService(t)

	first, err := svc.Provision(context.Background(), domain.ProvisionRequest{Name: "Acme Travel"})
	require.NoError(t, err)
	second, err := svc.Provision(context.Background(), domain.ProvisionRequest{Name: "ACME travel"})
	require.NoError(t, err)

	assert.Equal(t, "acme-travel", first.Slug)
	assert.Equal(t, "acme-travel-2", second.Slug)

	orgs, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}

func TestProvisionValidation(t *testing.T) {
	svc, _, _ := setupOrganizationService(t)

	_, err := svc.Provision(context.Background(), domain.ProvisionRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.GetByID(context.Background(), "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	svc, _, _ := setupOrganizationService(t)

	first, err := svc.EnsureDefault(context.Background(), "Main")
	require.NoError(t, err)
	second, err := svc.EnsureDefault(context.Background(), "Other name")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsDefault)
	assert.Equal(t, first.MunferitAccountID, second.MunferitAccountID)

	got, err := svc.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Name)
}
