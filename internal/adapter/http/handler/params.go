package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uuidParam parses a path parameter, writing a validation error on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// storeID returns the authenticated store. Routes that reach a handler have
// passed RequireStore, so a miss means the token was rejected.
func storeID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.StoreID(c)
	if !ok {
		response.Error(c, apperror.ErrForbidden())
	}
	return id, ok
}

func bindPage(c *gin.Context) (dto.PaginationQuery, bool) {
	var q dto.PaginationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return q, false
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = 20
	}
	return q, true
}

// sanitizeText trims and escapes a free-text field.
func sanitizeText(s string) string {
	v := struct{ S string }{S: s}
	dto.SanitizeStruct(&v)
	return v.S
}
