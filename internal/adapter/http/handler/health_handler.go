package handler

import (
	"net/http"
	"time"

	"merchant-wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type dependencyHealth struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck serves GET /health. Any failing dependency turns the answer
// into 503 "degraded" so load balancers stop routing webhooks here.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps := make(map[string]dependencyHealth, len(checkers))
		healthy := true

		for _, checker := range checkers {
			start := time.Now()
			err := checker.Ping(c.Request.Context())
			dep := dependencyHealth{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				dep.Status = "unhealthy"
				dep.Error = err.Error()
				healthy = false
			}
			deps[checker.Name()] = dep
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status, "dependencies": deps})
	}
}
