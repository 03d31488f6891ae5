package handler

import (
	"merchant-wallet-ledger/internal/adapter/http/middleware"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives provider events. ProviderSignature runs first and
// leaves the verified raw body in the context.
type WebhookHandler struct {
	webhookSvc ports.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// Receive handles POST /api/v1/webhooks/:provider. Processed, duplicate and
// ignored events answer 200, a concurrent delivery answers 202 and any
// settlement failure answers 5xx so the provider redelivers.
func (h *WebhookHandler) Receive(c *gin.Context) {
	raw, ok := c.Get(middleware.CtxRawBody)
	body, isBytes := raw.([]byte)
	if !ok || !isBytes {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	result, err := h.webhookSvc.HandleEvent(c.Request.Context(), c.Param("provider"), body)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Outcome == ports.WebhookOutcomeInProgress {
		response.Accepted(c, result)
		return
	}
	response.OK(c, result)
}
