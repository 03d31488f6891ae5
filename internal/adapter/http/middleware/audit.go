package middleware

import (
	"net/http"
	"strings"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuditLog records successful mutating requests on the routes it wraps.
// Services audit their own domain actions; this entry is the HTTP trail.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route := c.FullPath()
		entity := entityForRoute(c, route)
		if entity == "" {
			return
		}

		auditSvc.Log(c.Request.Context(), &domain.AuditEntry{
			Actor:    Actor(c),
			Action:   domain.AuditActionHTTPMutation,
			Entity:   entity,
			EntityID: c.Param("id"),
			After: domain.Snapshot(map[string]any{
				"method": c.Request.Method,
				"route":  route,
				"status": status,
			}),
		})
	}
}

// entityForRoute names the audited resource from the ops route template.
func entityForRoute(c *gin.Context, route string) string {
	rest, ok := strings.CutPrefix(route, "/api/v1/ops/")
	if !ok {
		return ""
	}
	segment, _, _ := strings.Cut(rest, "/")
	switch segment {
	case "locks":
		return c.Param("kind")
	case "withdrawals":
		return string(domain.LockKindWithdrawal)
	case "exports":
		return string(domain.LockKindExportJob)
	case "kyc":
		return "kyc_record"
	case "reconciliation":
		return "reconciliation_run"
	case "stuck-ops":
		return "stuck_operation"
	}
	return ""
}
