package domain

import (
	"context"

	"github.com/smallbiznis/cariledger/pkg/apperror"
)

type Service interface {
	// Provision creates the organization and its munferit account atomically.
	Provision(ctx context.Context, req ProvisionRequest) (*OrganizationResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	List(ctx context.Context) ([]OrganizationResponse, error)
	// EnsureDefault provisions the default organization on first start.
	EnsureDefault(ctx context.Context, name string) (*OrganizationResponse, error)
}

type ProvisionRequest struct {
	Name      string         `json:"name"`
	Metadata  map[string]any `json:"metadata"`
	IsDefault bool           `json:"-"`
}

type OrganizationResponse struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Slug              string `json:"slug"`
	IsDefault         bool   `json:"is_default"`
	MunferitAccountID string `json:"munferit_account_id,omitempty"`
}

func NewOrganizationResponse(org Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		IsDefault: org.IsDefault,
	}
}

var (
	ErrInvalidName         = apperror.Validation("invalid_name", "organization name is required")
	ErrInvalidOrganization = apperror.Validation("invalid_organization", "organization id is malformed")
	ErrNotFound            = apperror.NotFound("organization_not_found", "organization not found")
	ErrSlugExhausted       = apperror.Conflict("slug_exhausted", "could not allocate a unique organization slug")
)
