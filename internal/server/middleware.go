package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/cariledger/internal/observability/context"
	"github.com/smallbiznis/cariledger/internal/orgcontext"
)

const (
	HeaderOrg   = "X-Org-ID"
	HeaderActor = "X-Actor-ID"

	actorTypeUser = "user"
)

// OrgContext resolves the tenant from the X-Org-ID header and stores it on
// the request context. Services read it from there and nowhere else.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgcontext.ParseOrgID(c.GetHeader(HeaderOrg))
		if !ok {
			AbortWithError(c, orgcontext.ErrMissingOrg)
			return
		}

		c.Set("org_id", orgID.String())
		c.Request = c.Request.WithContext(orgcontext.WithOrgID(c.Request.Context(), orgID))
		c.Next()
	}
}

// ActorContext records who issued the request for the audit log.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActor))
		if actorID != "" {
			c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), actorTypeUser, actorID))
		}
		c.Next()
	}
}
