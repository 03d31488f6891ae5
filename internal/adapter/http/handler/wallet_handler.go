package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/clock"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves balances, ledger history and the PIN.
type WalletHandler struct {
	walletSvc ports.WalletService
	pinSvc    ports.PINService
	clock     clock.Clock
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, pinSvc ports.PINService, clk clock.Clock) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, pinSvc: pinSvc, clock: clk}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}

	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), sid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(wallet, h.clock.Now()))
}

// ListLedger handles GET /api/v1/wallet/ledger.
func (h *WalletHandler) ListLedger(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	q, ok := bindPage(c)
	if !ok {
		return
	}

	entries, total, err := h.walletSvc.ListLedger(c.Request.Context(), sid, q.Page, q.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.NewLedgerEntryResponse(e))
	}
	response.OK(c, dto.ListResponse{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize})
}

// SetPIN handles POST /api/v1/wallet/pin.
func (h *WalletHandler) SetPIN(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	var req dto.SetPINRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("pin must be 4 or 6 digits"))
		return
	}

	if err := h.pinSvc.SetPIN(c.Request.Context(), sid, req.PIN); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"pinSet": true})
}

// ChangePIN handles PUT /api/v1/wallet/pin.
func (h *WalletHandler) ChangePIN(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	var req dto.ChangePINRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation("pins must be 4 or 6 digits"))
		return
	}

	if err := h.pinSvc.ChangePIN(c.Request.Context(), sid, req.CurrentPIN, req.NewPIN); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"pinSet": true})
}
