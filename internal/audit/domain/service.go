package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/pkg/apperror"
	"github.com/smallbiznis/cariledger/pkg/db/pagination"
)

// Entry describes one audited action. Actor, request id and client details
// are taken from the context when not set.
type Entry struct {
	OrgID      *snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidOrganization = apperror.Validation("invalid_organization", "organization scope is required")
	ErrInvalidPageToken    = apperror.Validation("invalid_page_token", "page token is malformed")
	ErrInvalidTimeRange    = apperror.Validation("invalid_time_range", "start must not be after end")
	ErrInvalidAction       = apperror.Validation("invalid_action", "action is required")
)
