package handler

import (
	"fmt"
	"net/http"

	"merchant-wallet-ledger/internal/adapter/http/dto"
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExportHandler serves ledger CSV exports to operators.
type ExportHandler struct {
	exportSvc ports.ExportService
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportSvc ports.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// Create handles POST /api/v1/ops/exports.
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	job, err := h.exportSvc.Create(c.Request.Context(), uuid.MustParse(req.StoreID), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, job)
}

// Get handles GET /api/v1/ops/exports/:id.
func (h *ExportHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.exportSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Download handles GET /api/v1/ops/exports/:id/download.
func (h *ExportHandler) Download(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.exportSvc.Download(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, job.Filename()))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", job.Content)
}

// Regenerate handles POST /api/v1/ops/exports/:id/regenerate.
func (h *ExportHandler) Regenerate(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.exportSvc.Regenerate(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}

// Expire handles POST /api/v1/ops/exports/:id/expire.
func (h *ExportHandler) Expire(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.exportSvc.Expire(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, job)
}
