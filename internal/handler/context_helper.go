package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/middleware"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// bindJSON decodes the request body and answers 400 on malformed input.
func bindJSON(c *gin.Context, dst interface{}, what string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}

func listPagination(limit, offset, count int) *response.Pagination {
	return &response.Pagination{Limit: limit, Offset: offset, Count: count}
}
