package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/config"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	"github.com/smallbiznis/cariledger/internal/observability"
	obscontext "github.com/smallbiznis/cariledger/internal/observability/context"
	organizationdomain "github.com/smallbiznis/cariledger/internal/organization/domain"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgHeader = "1001"

type fakeCariService struct {
	lastOrg    snowflake.ID
	getCalls   int
	munferit   int
	createReq  caridomain.CreateAccountRequest
	updateReq  caridomain.UpdateAccountRequest
	deleteErr  error
	getErr     error
	listResult caridomain.ListAccountsResponse
	listReq    caridomain.ListAccountsRequest
}

func (f *fakeCariService) Create(ctx context.Context, req caridomain.CreateAccountRequest) (caridomain.Account, error) {
	f.lastOrg, _ = orgcontext.OrgIDFromContext(ctx)
	f.createReq = req
	return caridomain.Account{ID: 11, OrgID: f.lastOrg, CariCode: "CR00000001", Name: req.Name}, nil
}

func (f *fakeCariService) Get(ctx context.Context, id string) (caridomain.Account, error) {
	f.getCalls++
	if f.getErr != nil {
		return caridomain.Account{}, f.getErr
	}
	return caridomain.Account{ID: 11, Name: "Acme"}, nil
}

func (f *fakeCariService) GetMunferit(ctx context.Context) (caridomain.Account, error) {
	f.munferit++
	return caridomain.Account{ID: 7, CariCode: "MUNFERIT", IsMunferit: true}, nil
}

func (f *fakeCariService) Update(ctx context.Context, req caridomain.UpdateAccountRequest) (caridomain.Account, error) {
	f.updateReq = req
	return caridomain.Account{ID: 11}, nil
}

func (f *fakeCariService) Delete(ctx context.Context, id string) error {
	return f.deleteErr
}

func (f *fakeCariService) List(ctx context.Context, req caridomain.ListAccountsRequest) (caridomain.ListAccountsResponse, error) {
	f.listReq = req
	return f.listResult, nil
}

func (f *fakeCariService) EnsureMunferit(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (caridomain.Account, error) {
	return caridomain.Account{}, nil
}

type fakeLedgerService struct {
	postReq      ledgerdomain.PostTransactionRequest
	postErr      error
	voidReq      ledgerdomain.VoidTransactionRequest
	voidErr      error
	filter       ledgerdomain.StatementFilter
	recalcAll    ledgerdomain.RecalculateAllResult
	recalcAllErr error
	balances     caridomain.Balances
	balancesErr  error
}

func (f *fakeLedgerService) PostTransaction(ctx context.Context, req ledgerdomain.PostTransactionRequest) (ledgerdomain.Transaction, error) {
	f.postReq = req
	if f.postErr != nil {
		return ledgerdomain.Transaction{}, f.postErr
	}
	return ledgerdomain.Transaction{ID: 99, Type: req.Type, Amount: req.Amount, Currency: req.Currency, Sequence: 1}, nil
}

func (f *fakeLedgerService) VoidTransaction(ctx context.Context, req ledgerdomain.VoidTransactionRequest) (ledgerdomain.Transaction, error) {
	f.voidReq = req
	if f.voidErr != nil {
		return ledgerdomain.Transaction{}, f.voidErr
	}
	return ledgerdomain.Transaction{ID: 99, Status: ledgerdomain.TransactionStatusVoided}, nil
}

func (f *fakeLedgerService) RecalculateBalance(ctx context.Context, accountID string) (ledgerdomain.RecalculateResult, error) {
	return ledgerdomain.RecalculateResult{}, nil
}

func (f *fakeLedgerService) RecalculateAllBalances(ctx context.Context) (ledgerdomain.RecalculateAllResult, error) {
	return f.recalcAll, f.recalcAllErr
}

func (f *fakeLedgerService) ListTransactions(ctx context.Context, accountID string, filter ledgerdomain.StatementFilter) (ledgerdomain.Statement, error) {
	f.filter = filter
	return ledgerdomain.Statement{}, nil
}

func (f *fakeLedgerService) GetBalances(ctx context.Context, accountID string) (caridomain.Balances, error) {
	return f.balances, f.balancesErr
}

func (f *fakeLedgerService) CheckDrift(ctx context.Context, accountID string) (ledgerdomain.DriftReport, error) {
	return ledgerdomain.DriftReport{}, nil
}

func (f *fakeLedgerService) CheckAllDrift(ctx context.Context) (ledgerdomain.DriftSweep, error) {
	return ledgerdomain.DriftSweep{}, nil
}

type fakeOrganizationService struct {
	provisioned organizationdomain.ProvisionRequest
}

func (f *fakeOrganizationService) Provision(ctx context.Context, req organizationdomain.ProvisionRequest) (*organizationdomain.OrganizationResponse, error) {
	if req.Name == "" {
		return nil, organizationdomain.ErrInvalidName
	}
	f.provisioned = req
	return &organizationdomain.OrganizationResponse{ID: "5", Name: req.Name, Slug: "acme", MunferitAccountID: "6"}, nil
}

func (f *fakeOrganizationService) GetByID(ctx context.Context, id string) (*organizationdomain.OrganizationResponse, error) {
	return nil, organizationdomain.ErrNotFound
}

func (f *fakeOrganizationService) List(ctx context.Context) ([]organizationdomain.OrganizationResponse, error) {
	return []organizationdomain.OrganizationResponse{}, nil
}

func (f *fakeOrganizationService) EnsureDefault(ctx context.Context, name string) (*organizationdomain.OrganizationResponse, error) {
	return nil, nil
}

type fakeAuditService struct {
	actorType string
	actorID   string
}

func (f *fakeAuditService) AuditLog(ctx context.Context, entry auditdomain.Entry) error {
	return nil
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.actorType, f.actorID = obscontext.ActorFromContext(ctx)
	return auditdomain.ListAuditLogResponse{}, nil
}

type fakeReferenceRepo struct{}

func (fakeReferenceRepo) ListCurrencies(ctx context.Context) ([]refdomain.Currency, error) {
	return refdomain.DefaultCurrencies(), nil
}

func (fakeReferenceRepo) EnsureCurrencies(ctx context.Context) error { return nil }

type testServer struct {
	engine *gin.Engine
	cari   *fakeCariService
	ledger *fakeLedgerService
	orgs   *fakeOrganizationService
	audit  *fakeAuditService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		cari:   &fakeCariService{},
		ledger: &fakeLedgerService{},
		orgs:   &fakeOrganizationService{},
		audit:  &fakeAuditService{},
	}
	ts.engine = NewEngine(zap.NewNop(), observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:             ts.engine,
		Cfg:             config.Config{},
		Log:             zap.NewNop(),
		AuditSvc:        ts.audit,
		CariSvc:         ts.cari,
		LedgerSvc:       ts.ledger,
		OrganizationSvc: ts.orgs,
		Refrepo:         fakeReferenceRepo{},
	})
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) scoped(method, path, body string) *httptest.ResponseRecorder {
	return ts.do(method, path, body, map[string]string{HeaderOrg: testOrgHeader})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestScopedRoutesRequireOrgHeader(t *testing.T) {
	ts := newTestServer(t)

	for _, header := range []map[string]string{nil, {HeaderOrg: "not-a-number"}} {
		rec := ts.do(http.MethodGet, "/api/cari-accounts", "", header)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "missing_org", decodeError(t, rec).Code)
	}
	assert.Equal(t, 0, ts.cari.getCalls)
}

func TestCreateAccountCarriesOrgScope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts", `{"name":"Acme","kind":"supplier","email":"a@b.co"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, snowflake.ID(1001), ts.cari.lastOrg)
	assert.Equal(t, "supplier", ts.cari.createReq.Kind)

	var resp struct {
		Data caridomain.Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CR00000001", resp.Data.CariCode)
}

func TestMunferitRouteIsNotAnAccountID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodGet, "/api/cari-accounts/munferit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.cari.munferit)
	assert.Equal(t, 0, ts.cari.getCalls)
}

func TestListAccountsPassesFilters(t *testing.T) {
	ts := newTestServer(t)
	ts.cari.listResult = caridomain.ListAccountsResponse{Accounts: []caridomain.Account{{ID: 1, BalanceEUR: decimal.RequireFromString("12.5")}}}

	rec := ts.scoped(http.MethodGet, "/api/cari-accounts?q=acme&kind=customer&page_size=5&page_token=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acme", ts.cari.listReq.Query)
	assert.Equal(t, "customer", ts.cari.listReq.Kind)
	assert.Equal(t, 5, ts.cari.listReq.PageSize)
	assert.Equal(t, "abc", ts.cari.listReq.PageToken)
	assert.Contains(t, rec.Body.String(), `"balance_eur":"12.5"`)
}

func TestUpdateUsesPathID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPatch, "/api/cari-accounts/11", `{"phone":"555"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "11", ts.cari.updateReq.ID)
	require.NotNil(t, ts.cari.updateReq.Phone)
	assert.Equal(t, "555", *ts.cari.updateReq.Phone)
	assert.Nil(t, ts.cari.updateReq.Name)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", caridomain.ErrInvalidKind, http.StatusBadRequest, "invalid_kind", false},
		{"forbidden", caridomain.ErrMunferitProtected, http.StatusForbidden, "munferit_protected", false},
		{"conflict", caridomain.ErrHasTransactionHistory, http.StatusConflict, "has_transaction_history", false},
		{"version conflict", ledgerdomain.ErrVersionConflict, http.StatusConflict, "version_conflict", true},
		{"not found", caridomain.ErrNotFound, http.StatusNotFound, "account_not_found", false},
		{"storage", apperror.Storage(errors.New("connection reset")), http.StatusInternalServerError, "storage_error", true},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.cari.deleteErr = tc.err

			rec := ts.scoped(http.MethodDelete, "/api/cari-accounts/11", "")
			require.Equal(t, tc.status, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tc.code, payload.Code)
			assert.Equal(t, tc.retryable, payload.Retryable)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestDeleteReturnsNoContent(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.scoped(http.MethodDelete, "/api/cari-accounts/11", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPostTransactionDecodesWireFormat(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts/11/transactions",
		`{"transaction_type":"debit","amount":"100.1234","currency":"EUR","date":"2024-03-01","description":"invoice"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req := ts.ledger.postReq
	assert.Equal(t, "11", req.AccountID)
	assert.Equal(t, ledgerdomain.TransactionTypeDebit, req.Type)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("100.1234")))
	assert.Equal(t, refdomain.CurrencyCode("EUR"), req.Currency)
	assert.Equal(t, "2024-03-01", req.Date.String())
}

func TestPostTransactionRejectsMalformedDate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts/11/transactions",
		`{"transaction_type":"debit","amount":"1","currency":"EUR","date":"01/03/2024"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "invalid_date", payload.Code)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "date", payload.Errors[0].Field)
}

func TestPostTransactionValidationFieldFromCode(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.postErr = ledgerdomain.ErrInvalidCurrency

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts/11/transactions",
		`{"transaction_type":"debit","amount":"1","currency":"GBP"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "currency", payload.Errors[0].Field)
}

func TestVoidAcceptsEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-transactions/99/void", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "99", ts.ledger.voidReq.TransactionID)

	ts.ledger.voidErr = ledgerdomain.ErrAlreadyVoided
	rec = ts.scoped(http.MethodPost, "/api/cari-transactions/99/void", `{"reason":"duplicate"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", ts.ledger.voidReq.Reason)
	assert.Equal(t, "already_voided", decodeError(t, rec).Code)
}

func TestListTransactionsFilters(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodGet, "/api/cari-accounts/11/transactions?currency=usd&from=2024-01-01&to=2024-01-31&include_voided=false", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f := ts.ledger.filter
	assert.Equal(t, "USD", f.Currency)
	require.NotNil(t, f.From)
	require.NotNil(t, f.To)
	assert.Equal(t, "2024-01-01", f.From.String())
	assert.Equal(t, "2024-01-31", f.To.String())
	assert.False(t, f.IncludeVoided)

	rec = ts.scoped(http.MethodGet, "/api/cari-accounts/11/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.ledger.filter.IncludeVoided)

	rec = ts.scoped(http.MethodGet, "/api/cari-accounts/11/transactions?from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_from", decodeError(t, rec).Code)
}

func TestRecalculateAllResponseShape(t *testing.T) {
	ts := newTestServer(t)
	ts.ledger.recalcAll = ledgerdomain.RecalculateAllResult{
		Succeeded: []string{"1", "3"},
		Failed:    []ledgerdomain.AccountFailure{{AccountID: "2", Reason: "corrupt_transaction"}},
	}

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts/recalculate-all", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Message   string                            `json:"message"`
		Succeeded []string                          `json:"succeeded"`
		Failed    []ledgerdomain.AccountFailure `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "recalculated 2 accounts, 1 failed", resp.Message)
	assert.Equal(t, []string{"1", "3"}, resp.Succeeded)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "2", resp.Failed[0].AccountID)
}

func TestRecalculateAllEmptyListsAreArrays(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts/recalculate-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"succeeded":[]`)
	assert.Contains(t, rec.Body.String(), `"failed":[]`)
}

func TestTenantProvisioning(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/tenants", `{"name":" Acme Ltd "}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Acme Ltd", ts.orgs.provisioned.Name)
	assert.Contains(t, rec.Body.String(), `"munferit_account_id":"6"`)

	rec = ts.do(http.MethodPost, "/api/tenants", `{"name":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/tenants/42", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActorHeaderReachesServices(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/audit-logs", "", map[string]string{
		HeaderOrg:   testOrgHeader,
		HeaderActor: "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user", ts.audit.actorType)
	assert.Equal(t, "alice", ts.audit.actorID)
}

func TestMalformedBodyIsInvalidRequest(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.scoped(http.MethodPost, "/api/cari-accounts", `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCurrencies(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/currencies", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TRY")
}
