package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/cariledger/internal/audit/domain"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/internal/clock"
	"github.com/smallbiznis/cariledger/internal/organization/domain"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/smallbiznis/cariledger/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	GenID *snowflake.Node
	Cari  caridomain.Service
	Audit auditdomain.Service `optional:"true"`
	Clock clock.Clock         `optional:"true"`
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	cari  caridomain.Service
	audit auditdomain.Service
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &service{
		db:    p.DB,
		log:   p.Log.Named("organization.service"),
		repo:  p.Repo,
		genID: p.GenID,
		cari:  p.Cari,
		audit: p.Audit,
		clock: c,
	}
}

func (s *service) Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		IsDefault: req.IsDefault,
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if org.Metadata == nil {
		org.Metadata = datatypes.JSONMap{}
	}

	var munferit caridomain.Account
	err := rls.Transaction(ctx, s.db, int64(org.ID), func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		orgSlug, err := s.uniqueSlug(ctx, repo, name)
		if err != nil {
			return err
		}
		org.Slug = orgSlug

		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		munferit, err = s.cari.EnsureMunferit(ctx, tx, org.ID)
		return err
	})
	if err != nil {
		return nil, apperror.Storage(err)
	}

	s.log.Info("organization provisioned",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
	)
	if s.audit != nil {
		if err := s.audit.AuditLog(ctx, auditdomain.Entry{
			OrgID:      &org.ID,
			Action:     auditdomain.ActionOrganizationProvision,
			TargetType: auditdomain.TargetOrganization,
			TargetID:   org.ID.String(),
			Metadata: map[string]any{
				"slug":                org.Slug,
				"munferit_account_id": munferit.ID.String(),
			},
		}); err != nil {
			s.log.Warn("audit log failed", zap.Error(err))
		}
	}

	resp := domain.NewOrganizationResponse(org)
	resp.MunferitAccountID = munferit.ID.String()
	return &resp, nil
}

// uniqueSlug appends a numeric suffix until the slug is free.
func (s *service) uniqueSlug(ctx context.Context, repo domain.Repository, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}

	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts+1; attempt++ {
		exists, err := repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", domain.ErrSlugExhausted
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orgID <= 0 {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}

	resp := domain.NewOrganizationResponse(*org)
	return &resp, nil
}

func (s *service) List(ctx context.Context) ([]domain.OrganizationResponse, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperror.Storage(err)
	}

	resp := make([]domain.OrganizationResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.NewOrganizationResponse(item))
	}
	return resp, nil
}

func (s *service) EnsureDefault(ctx context.Context, name string) (*domain.OrganizationResponse, error) {
	existing, err := s.repo.FindDefault(ctx)
	if err != nil {
		return nil, apperror.Storage(err)
	}
	if existing != nil {
		// Older databases may predate munferit provisioning.
		munferit, err := s.cari.EnsureMunferit(ctx, s.db, existing.ID)
		if err != nil {
			return nil, err
		}
		resp := domain.NewOrganizationResponse(*existing)
		resp.MunferitAccountID = munferit.ID.String()
		return &resp, nil
	}

	if strings.TrimSpace(name) == "" {
		name = "Default"
	}
	return s.Provision(ctx, domain.ProvisionRequest{Name: name, IsDefault: true})
}
