package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	"github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/config"
	"github.com/smallbiznis/cariledger/internal/ledger/lock"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/smallbiznis/cariledger/pkg/db"
	"github.com/smallbiznis/cariledger/pkg/db/pagination"
	"github.com/smallbiznis/cariledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const munferitName = "Münferit"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Config  config.Config
	Repo    domain.Repository
	Counter domain.TransactionCounter
	Locker  lock.Locker
	Audit   auditdomain.Service `optional:"true"`
	Clock   clock.Clock         `optional:"true"`
	Codes   CodeGenerator       `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	counter     domain.TransactionCounter
	locker      lock.Locker
	audit       auditdomain.Service
	clock       clock.Clock
	codes       CodeGenerator
	codeRetries int
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	codes := p.Codes
	if codes == nil {
		codes = ULIDCodeGenerator
	}
	retries := p.Config.Ledger.CodeGenerateRetries
	if retries <= 0 {
		retries = config.DefaultLedgerConfig().CodeGenerateRetries
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("cari.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		counter:     p.Counter,
		locker:      p.Locker,
		audit:       p.Audit,
		clock:       c,
		codes:       codes,
		codeRetries: retries,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	kind, ok := domain.ParseAccountKind(req.Kind)
	if !ok {
		return domain.Account{}, domain.ErrInvalidKind
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Account{}, err
	}

	now := s.clock.Now().UTC()
	account := domain.Account{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		Kind:        kind,
		ContactName: strings.TrimSpace(req.ContactName),
		Email:       email,
		Phone:       strings.TrimSpace(req.Phone),
		TaxOffice:   strings.TrimSpace(req.TaxOffice),
		TaxNumber:   strings.TrimSpace(req.TaxNumber),
		Address:     strings.TrimSpace(req.Address),
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if account.Metadata == nil {
		account.Metadata = datatypes.JSONMap{}
	}

	if err := s.insertWithCode(ctx, s.db, &account); err != nil {
		return domain.Account{}, err
	}

	s.log.Info("cari account created",
		zap.String("account_id", account.ID.String()),
		zap.String("cari_code", account.CariCode),
	)
	s.auditLog(ctx, orgID, auditdomain.ActionAccountCreated, account.ID, map[string]any{
		"cari_code": account.CariCode,
		"name":      account.Name,
		"kind":      string(account.Kind),
	})

	return account, nil
}

// insertWithCode retries code generation on unique violations. Each attempt
// runs in its own transaction, nested as a savepoint when tx is already one.
func (s *Service) insertWithCode(ctx context.Context, tx *gorm.DB, account *domain.Account) error {
	for attempt := 1; attempt <= s.codeRetries; attempt++ {
		account.CariCode = s.codes()
		err := rls.Transaction(ctx, tx, int64(account.OrgID), func(tx *gorm.DB) error {
			return s.repo.Insert(ctx, tx, account)
		})
		if err == nil {
			return nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return apperror.Storage(err)
		}
		s.log.Debug("cari code collision", zap.String("cari_code", account.CariCode), zap.Int("attempt", attempt))
	}
	return domain.ErrCodeExhausted
}

func (s *Service) Get(ctx context.Context, id string) (domain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	accountID, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}

	account, err := s.repo.FindByID(ctx, s.db, orgID, accountID)
	if err != nil {
		return domain.Account{}, apperror.Storage(err)
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) GetMunferit(ctx context.Context) (domain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	account, err := s.repo.FindMunferit(ctx, s.db, orgID)
	if err != nil {
		return domain.Account{}, apperror.Storage(err)
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateAccountRequest) (domain.Account, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Account{}, domain.ErrInvalidOrganization
	}

	accountID, err := parseID(req.ID)
	if err != nil {
		return domain.Account{}, err
	}

	account, err := s.repo.FindByID(ctx, s.db, orgID, accountID)
	if err != nil {
		return domain.Account{}, apperror.Storage(err)
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if account.IsMunferit {
		return domain.Account{}, domain.ErrMunferitProtected
	}

	changes, err := applyUpdate(account, req)
	if err != nil {
		return domain.Account{}, err
	}
	if len(changes) == 0 {
		return *account, nil
	}

	account.UpdatedAt = s.clock.Now().UTC()
	err = rls.Transaction(ctx, s.db, int64(orgID), func(tx *gorm.DB) error {
		return s.repo.UpdateProfile(ctx, tx, account)
	})
	if err != nil {
		return domain.Account{}, apperror.Storage(err)
	}

	s.auditLog(ctx, orgID, auditdomain.ActionAccountUpdated, account.ID, map[string]any{
		"cari_code": account.CariCode,
		"changes":   changes,
	})
	return *account, nil
}

func applyUpdate(account *domain.Account, req domain.UpdateAccountRequest) (map[string]any, error) {
	changes := map[string]any{}
	setString := func(field string, target *string, value *string) {
		if value == nil {
			return
		}
		next := strings.TrimSpace(*value)
		if next == *target {
			return
		}
		*target = next
		changes[field] = next
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, domain.ErrInvalidName
		}
		setString("name", &account.Name, req.Name)
	}
	if req.Kind != nil {
		kind, ok := domain.ParseAccountKind(*req.Kind)
		if !ok {
			return nil, domain.ErrInvalidKind
		}
		if kind != account.Kind {
			account.Kind = kind
			changes["kind"] = string(kind)
		}
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		setString("email", &account.Email, &email)
	}
	setString("contact_name", &account.ContactName, req.ContactName)
	setString("phone", &account.Phone, req.Phone)
	setString("tax_office", &account.TaxOffice, req.TaxOffice)
	setString("tax_number", &account.TaxNumber, req.TaxNumber)
	setString("address", &account.Address, req.Address)
	if req.Metadata != nil {
		account.Metadata = datatypes.JSONMap(req.Metadata)
		changes["metadata"] = true
	}
	return changes, nil
}

// Delete removes an account that never carried a transaction. The account
// lock is held so no post can slip in between the count and the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}

	accountID, err := parseID(id)
	if err != nil {
		return err
	}

	var cariCode string
	err = lock.WithAccount(ctx, s.locker, orgID, accountID, func(ctx context.Context) error {
		return rls.Transaction(ctx, s.db, int64(orgID), func(tx *gorm.DB) error {
			account, err := s.repo.FindByID(ctx, tx, orgID, accountID)
			if err != nil {
				return err
			}
			if account == nil {
				return domain.ErrNotFound
			}
			if account.IsMunferit {
				return domain.ErrMunferitProtected
			}

			count, err := s.counter.CountByAccount(ctx, tx, orgID, accountID)
			if err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrHasTransactionHistory
			}

			rows, err := s.repo.Delete(ctx, tx, orgID, accountID)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrNotFound
			}
			cariCode = account.CariCode
			return nil
		})
	})
	if err != nil {
		return apperror.Storage(err)
	}

	s.log.Info("cari account deleted", zap.String("account_id", accountID.String()))
	s.auditLog(ctx, orgID, auditdomain.ActionAccountDeleted, accountID, map[string]any{
		"cari_code": cariCode,
	})
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountsRequest) (domain.ListAccountsResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListAccountsResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListAccountFilter{
		Query:           strings.TrimSpace(req.Query),
		IncludeMunferit: req.IncludeMunferit,
	}
	if strings.TrimSpace(req.Kind) != "" {
		kind, ok := domain.ParseAccountKind(req.Kind)
		if !ok {
			if !strings.EqualFold(strings.TrimSpace(req.Kind), string(domain.AccountKindMunferit)) {
				return domain.ListAccountsResponse{}, domain.ErrInvalidKind
			}
			kind = domain.AccountKindMunferit
			filter.IncludeMunferit = true
		}
		filter.Kind = kind
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	filter.Limit = page.Limit()
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListAccountsResponse{}, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil || afterID <= 0 {
			return domain.ListAccountsResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListAccountsResponse{}, apperror.Storage(err)
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(account *domain.Account) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        account.ID.String(),
			CreatedAt: account.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}

	resp := domain.ListAccountsResponse{Accounts: accounts}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) EnsureMunferit(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (domain.Account, error) {
	if orgID == 0 {
		return domain.Account{}, domain.ErrInvalidOrganization
	}
	if tx == nil {
		tx = s.db
	}

	existing, err := s.repo.FindMunferit(ctx, tx, orgID)
	if err != nil {
		return domain.Account{}, apperror.Storage(err)
	}
	if existing != nil {
		return *existing, nil
	}

	now := s.clock.Now().UTC()
	account := domain.Account{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		CariCode:   domain.MunferitCode,
		Name:       munferitName,
		Kind:       domain.AccountKindMunferit,
		Metadata:   datatypes.JSONMap{},
		IsMunferit: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = rls.Transaction(ctx, tx, int64(orgID), func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &account)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Account{}, apperror.Wrap(domain.ErrMunferitExists, err)
		}
		return domain.Account{}, apperror.Storage(err)
	}

	s.log.Info("munferit account created", zap.String("org_id", orgID.String()))
	return account, nil
}

func (s *Service) auditLog(ctx context.Context, orgID snowflake.ID, action string, accountID snowflake.ID, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AuditLog(ctx, auditdomain.Entry{
		OrgID:      &orgID,
		Action:     action,
		TargetType: auditdomain.TargetAccount,
		TargetID:   accountID.String(),
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func normalizeEmail(value string) (string, error) {
	email := strings.TrimSpace(value)
	if email == "" {
		return "", nil
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}
