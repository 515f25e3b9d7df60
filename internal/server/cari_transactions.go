package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/cariledger/internal/ledger/domain"
	obslogger "github.com/smallbiznis/cariledger/internal/observability/logger"
	"go.uber.org/zap"
)

type listCariTransactionsQuery struct {
	Currency      string `form:"currency"`
	From          string `form:"from"`
	To            string `form:"to"`
	IncludeVoided string `form:"include_voided"`
}

func (s *Server) ListCariTransactions(c *gin.Context) {
	var query listCariTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, err := parseOptionalDate(query.From)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "from must be formatted as YYYY-MM-DD"))
		return
	}
	to, err := parseOptionalDate(query.To)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "to must be formatted as YYYY-MM-DD"))
		return
	}
	includeVoided, err := parseOptionalBool(query.IncludeVoided)
	if err != nil {
		AbortWithError(c, newValidationError("include_voided", "invalid_include_voided", "include_voided must be a boolean"))
		return
	}

	filter := ledgerdomain.StatementFilter{
		Currency:      strings.ToUpper(strings.TrimSpace(query.Currency)),
		From:          from,
		To:            to,
		IncludeVoided: true,
	}
	if includeVoided != nil {
		filter.IncludeVoided = *includeVoided
	}

	statement, err := s.ledgerSvc.ListTransactions(c.Request.Context(), strings.TrimSpace(c.Param("id")), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": statement})
}

func (s *Server) PostCariTransaction(c *gin.Context) {
	var req ledgerdomain.PostTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	req.AccountID = strings.TrimSpace(c.Param("id"))

	txn, err := s.ledgerSvc.PostTransaction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": txn})
}

func (s *Server) VoidCariTransaction(c *gin.Context) {
	var req ledgerdomain.VoidTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.TransactionID = strings.TrimSpace(c.Param("id"))

	txn, err := s.ledgerSvc.VoidTransaction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) GetCariBalances(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	balances, err := s.ledgerSvc.GetBalances(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"account_id": accountID,
		"balances":   balances,
	}})
}

func (s *Server) CheckCariDrift(c *gin.Context) {
	report, err := s.ledgerSvc.CheckDrift(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) RecalculateBalance(c *gin.Context) {
	result, err := s.ledgerSvc.RecalculateBalance(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// RecalculateAllBalances reports per-account outcomes. Individual failures
// do not fail the request; only an error before any account ran does.
func (s *Server) RecalculateAllBalances(c *gin.Context) {
	result, err := s.ledgerSvc.RecalculateAllBalances(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failed := result.Failed
	if failed == nil {
		failed = []ledgerdomain.AccountFailure{}
	}
	succeeded := result.Succeeded
	if succeeded == nil {
		succeeded = []string{}
	}

	if len(failed) > 0 {
		obslogger.WithContext(c.Request.Context(), s.log).Warn("recalculate all finished with failures",
			zap.Int("succeeded", len(succeeded)),
			zap.Int("failed", len(failed)),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   fmt.Sprintf("recalculated %d accounts, %d failed", len(succeeded), len(failed)),
		"succeeded": succeeded,
		"failed":    failed,
	})
}
