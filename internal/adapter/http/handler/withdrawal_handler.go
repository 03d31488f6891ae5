package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WithdrawalHandler exposes the merchant side of the withdrawal state machine.
type WithdrawalHandler struct {
	withdrawalSvc ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawalSvc ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalSvc: withdrawalSvc}
}

// Initiate handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Initiate(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	var req dto.InitiateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	w, err := h.withdrawalSvc.Initiate(c.Request.Context(), ports.InitiateWithdrawalRequest{
		StoreID:       sid,
		PIN:           req.PIN,
		BankAccountID: uuid.MustParse(req.BankAccountID),
		AmountKobo:    req.AmountKobo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewWithdrawalResponse(w))
}

// Confirm handles POST /api/v1/withdrawals/:id/confirm. A payout still
// awaiting the provider answers 202.
func (h *WithdrawalHandler) Confirm(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ConfirmWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("otpCode must be 6 digits"))
		return
	}

	w, err := h.withdrawalSvc.Confirm(c.Request.Context(), sid, id, req.OTPCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	if w.Status == domain.WithdrawalStatusProcessing {
		response.Accepted(c, dto.NewWithdrawalResponse(w))
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// Cancel handles POST /api/v1/withdrawals/:id/cancel.
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawalSvc.Cancel(c.Request.Context(), sid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// Get handles GET /api/v1/withdrawals/:id.
func (h *WithdrawalHandler) Get(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	w, err := h.withdrawalSvc.Get(c.Request.Context(), sid, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// List handles GET /api/v1/withdrawals.
func (h *WithdrawalHandler) List(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	q, ok := bindPage(c)
	if !ok {
		return
	}

	list, total, err := h.withdrawalSvc.List(c.Request.Context(), sid, q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WithdrawalResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewWithdrawalResponse(&list[i]))
	}
	response.OK(c, dto.ListResponse{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize})
}
