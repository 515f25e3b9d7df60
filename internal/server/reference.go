package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	refdomain "github.com/smallbiznis/cariledger/internal/reference/domain"
)

// ListCurrencies returns the currencies the ledger accepts postings in.
func (s *Server) ListCurrencies(c *gin.Context) {
	currencies, err := s.refrepo.ListCurrencies(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	supported := make([]refdomain.Currency, 0, len(currencies))
	for _, currency := range currencies {
		if _, ok := refdomain.ParseCurrency(currency.Code); ok && currency.IsActive {
			supported = append(supported, currency)
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": supported})
}
