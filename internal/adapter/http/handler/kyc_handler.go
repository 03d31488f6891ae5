package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// KYCHandler handles identity submission and review.
type KYCHandler struct {
	kycSvc ports.KYCService
}

// NewKYCHandler creates a new KYCHandler.
func NewKYCHandler(kycSvc ports.KYCService) *KYCHandler {
	return &KYCHandler{kycSvc: kycSvc}
}

// Submit handles POST /api/v1/kyc.
func (h *KYCHandler) Submit(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}
	var req dto.SubmitKYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// The raw identifier must not be echoed back.
		response.Error(c, apperror.Validation("idType must be BVN or NIN with an 11 digit idNumber and a fullName"))
		return
	}

	rec, err := h.kycSvc.Submit(c.Request.Context(), ports.SubmitKYCRequest{
		StoreID:  sid,
		IDType:   domain.IDType(req.IDType),
		IDNumber: req.IDNumber,
		FullName: sanitizeText(req.FullName),
		Actor:    middleware.Actor(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rec)
}

// GetLatest handles GET /api/v1/kyc.
func (h *KYCHandler) GetLatest(c *gin.Context) {
	sid, ok := storeID(c)
	if !ok {
		return
	}

	rec, err := h.kycSvc.GetLatest(c.Request.Context(), sid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}

// ListPending handles GET /api/v1/ops/kyc/pending.
func (h *KYCHandler) ListPending(c *gin.Context) {
	recs, err := h.kycSvc.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, recs)
}

// Review handles POST /api/v1/ops/kyc/:id/review.
func (h *KYCHandler) Review(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ReviewKYCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	rec, err := h.kycSvc.Review(c.Request.Context(), ports.ReviewKYCRequest{
		RecordID: id,
		Decision: domain.KYCDecision(req.Decision),
		Reason:   sanitizeText(req.Reason),
		Actor:    middleware.Actor(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rec)
}
