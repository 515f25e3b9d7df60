// Package orgcontext carries the active tenant on a request context.
package orgcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cariledger/pkg/apperror"
)

type orgKey struct{}

// ErrMissingOrg is returned when an operation needs a tenant scope and none is set.
var ErrMissingOrg = apperror.Validation("missing_org", "organization scope is required")

// WithOrgID stores the org ID in the context.
func WithOrgID(ctx context.Context, orgID snowflake.ID) context.Context {
	return context.WithValue(ctx, orgKey{}, orgID)
}

// OrgIDFromContext returns the org ID from context, if set.
func OrgIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(orgKey{}).(snowflake.ID)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}

// RequireOrgID is OrgIDFromContext for service entry points.
func RequireOrgID(ctx context.Context) (snowflake.ID, error) {
	id, ok := OrgIDFromContext(ctx)
	if !ok {
		return 0, ErrMissingOrg
	}
	return id, nil
}

// ParseOrgID parses a header or path value into an org ID.
func ParseOrgID(raw string) (snowflake.ID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
