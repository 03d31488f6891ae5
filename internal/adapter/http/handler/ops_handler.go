package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OpsHandler serves the operator console: soft locks, stuck payouts,
// reconciliation and monitoring.
type OpsHandler struct {
	lockSvc       ports.LockService
	withdrawalSvc ports.WithdrawalService
	reconSvc      ports.ReconciliationService
	monitoringSvc ports.MonitoringService
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(
	lockSvc ports.LockService,
	withdrawalSvc ports.WithdrawalService,
	reconSvc ports.ReconciliationService,
	monitoringSvc ports.MonitoringService,
) *OpsHandler {
	return &OpsHandler{
		lockSvc:       lockSvc,
		withdrawalSvc: withdrawalSvc,
		reconSvc:      reconSvc,
		monitoringSvc: monitoringSvc,
	}
}

func lockTarget(c *gin.Context) (domain.LockKind, uuid.UUID, bool) {
	kind := domain.LockKind(c.Param("kind"))
	if !kind.Valid() {
		response.Error(c, apperror.Validation("unknown lock kind "+string(kind)))
		return "", uuid.Nil, false
	}
	id, ok := uuidParam(c, "id")
	return kind, id, ok
}

// AcquireLock handles POST /api/v1/ops/locks/:kind/:id.
func (h *OpsHandler) AcquireLock(c *gin.Context) {
	kind, id, ok := lockTarget(c)
	if !ok {
		return
	}

	holder, err := h.lockSvc.Acquire(c.Request.Context(), kind, id, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, holder)
}

// ReleaseLock handles DELETE /api/v1/ops/locks/:kind/:id.
func (h *OpsHandler) ReleaseLock(c *gin.Context) {
	kind, id, ok := lockTarget(c)
	if !ok {
		return
	}

	if err := h.lockSvc.Release(c.Request.Context(), kind, id, middleware.Actor(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"kind": kind, "id": id.String(), "released": true})
}

// ResolveWithdrawal handles POST /api/v1/ops/withdrawals/:id/resolve.
func (h *OpsHandler) ResolveWithdrawal(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ResolveWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	w, err := h.withdrawalSvc.Resolve(c.Request.Context(), ports.ResolveWithdrawalRequest{
		WithdrawalID:      id,
		Actor:             middleware.Actor(c),
		Succeeded:         req.Outcome == string(domain.WithdrawalStatusSuccess),
		ProviderReference: req.ProviderReference,
		Reason:            sanitizeText(req.Reason),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// RunReconciliation handles POST /api/v1/ops/reconciliation/run.
func (h *OpsHandler) RunReconciliation(c *gin.Context) {
	res, err := h.reconSvc.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, res)
}

// ListIncidents handles GET /api/v1/ops/reconciliation/incidents?runId=.
func (h *OpsHandler) ListIncidents(c *gin.Context) {
	var q dto.ReconciliationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var runID *uuid.UUID
	if q.RunID != "" {
		id := uuid.MustParse(q.RunID)
		runID = &id
	}
	incidents, err := h.reconSvc.ListIncidents(c.Request.Context(), runID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, incidents)
}

// LogStuckOps handles POST /api/v1/ops/stuck-ops/log.
func (h *OpsHandler) LogStuckOps(c *gin.Context) {
	n, err := h.monitoringSvc.LogStuckOps(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"logged": n})
}

// StuckOps handles GET /api/v1/ops/stuck-ops.
func (h *OpsHandler) StuckOps(c *gin.Context) {
	f, err := h.monitoringSvc.Detect(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, f)
}

// Metrics handles GET /api/v1/ops/metrics.
func (h *OpsHandler) Metrics(c *gin.Context) {
	m, err := h.monitoringSvc.Metrics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, m)
}

// SlowPaths handles GET /api/v1/ops/metrics/slow-paths.
func (h *OpsHandler) SlowPaths(c *gin.Context) {
	response.OK(c, h.monitoringSvc.SlowPaths())
}
