package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	caridomain "github.com/smallbiznis/cariledger/internal/cari/domain"
	"github.com/smallbiznis/cariledger/pkg/db/pagination"
)

type listCariAccountsQuery struct {
	pagination.Pagination
	Q    string `form:"q"`
	Kind string `form:"kind"`
}

func (s *Server) ListCariAccounts(c *gin.Context) {
	var query listCariAccountsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.cariSvc.List(c.Request.Context(), caridomain.ListAccountsRequest{
		Query:     strings.TrimSpace(query.Q),
		Kind:      strings.TrimSpace(query.Kind),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Accounts, "page_info": resp.PageInfo})
}

func (s *Server) CreateCariAccount(c *gin.Context) {
	var req caridomain.CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := s.cariSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": account})
}

func (s *Server) GetCariAccount(c *gin.Context) {
	account, err := s.cariSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) GetMunferitAccount(c *gin.Context) {
	account, err := s.cariSvc.GetMunferit(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) UpdateCariAccount(c *gin.Context) {
	var req caridomain.UpdateAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	account, err := s.cariSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": account})
}

func (s *Server) DeleteCariAccount(c *gin.Context) {
	if err := s.cariSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
