package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/smallbiznis/cariledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateAccountRequest struct {
	Name        string         `json:"name"`
	Kind        string         `json:"kind"`
	ContactName string         `json:"contact_name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	TaxOffice   string         `json:"tax_office"`
	TaxNumber   string         `json:"tax_number"`
	Address     string         `json:"address"`
	Metadata    map[string]any `json:"metadata"`
}

// UpdateAccountRequest applies only the fields that are set.
type UpdateAccountRequest struct {
	ID          string         `json:"-"`
	Name        *string        `json:"name"`
	Kind        *string        `json:"kind"`
	ContactName *string        `json:"contact_name"`
	Email       *string        `json:"email"`
	Phone       *string        `json:"phone"`
	TaxOffice   *string        `json:"tax_office"`
	TaxNumber   *string        `json:"tax_number"`
	Address     *string        `json:"address"`
	Metadata    map[string]any `json:"metadata"`
}

type ListAccountsRequest struct {
	Query           string
	Kind            string
	IncludeMunferit bool
	PageToken       string
	PageSize        int
}

type ListAccountsResponse struct {
	pagination.PageInfo
	Accounts []Account `json:"accounts"`
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	GetMunferit(ctx context.Context) (Account, error)
	Update(ctx context.Context, req UpdateAccountRequest) (Account, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListAccountsRequest) (ListAccountsResponse, error)
	// EnsureMunferit creates the tenant's walk-in account inside tx unless it exists.
	EnsureMunferit(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (Account, error)
}

var (
	ErrInvalidOrganization   = apperror.Validation("invalid_organization", "organization scope is required")
	ErrInvalidName           = apperror.Validation("invalid_name", "name is required")
	ErrInvalidKind           = apperror.Validation("invalid_kind", "kind must be supplier, customer or b2b_partner")
	ErrInvalidEmail          = apperror.Validation("invalid_email", "email is malformed")
	ErrInvalidID             = apperror.Validation("invalid_id", "account id is malformed")
	ErrInvalidPageToken      = apperror.Validation("invalid_page_token", "page token is malformed")
	ErrNotFound              = apperror.NotFound("account_not_found", "cari account not found")
	ErrMunferitProtected     = apperror.Forbidden("munferit_protected", "the munferit account cannot be edited or deleted")
	ErrHasTransactionHistory = apperror.Conflict("has_transaction_history", "account has transaction history and cannot be deleted")
	ErrMunferitExists        = apperror.Conflict("munferit_exists", "the organization already has a munferit account")
	ErrCodeExhausted         = apperror.Conflict("cari_code_exhausted", "could not allocate a unique cari code")
)
