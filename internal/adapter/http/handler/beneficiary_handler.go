package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// BeneficiaryHandler manages payout destinations.
type BeneficiaryHandler struct {
	beneficiarySvc ports.BeneficiaryService
}

// NewBeneficiaryHandler creates a new BeneficiaryHandler.
func NewBeneficiaryHandler(beneficiarySvc ports.BeneficiaryService) *BeneficiaryHandler {
	return &BeneficiaryHandler{beneficiarySvc: beneficiarySvc}
}

// Add handles POST /api/v1/beneficiaries.
func (h *BeneficiaryHandler) Add(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	var req dto.AddBeneficiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("bankCode, a 10 digit accountNumber and accountName are required"))
		return
	}
	dto.SanitizeStruct(&req)

	b, err := h.beneficiarySvc.Add(c.Request.Context(), ports.AddBeneficiaryRequest{
		StoreID:       sid,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, b)
}

// List handles GET /api/v1/beneficiaries.
func (h *BeneficiaryHandler) List(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}

	list, err := h.beneficiarySvc.List(c.Request.Context(), sid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Deactivate handles DELETE /api/v1/beneficiaries/:id.
func (h *BeneficiaryHandler) Deactivate(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.beneficiarySvc.Deactivate(c.Request.Context(), sid, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": id.String(), "isActive": false})
}
