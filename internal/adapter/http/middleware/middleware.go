package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"merchant-wallet-ledger/internal/core/domain"
	"merchant-wallet-ledger/internal/core/ports"
	"merchant-wallet-ledger/pkg/apperror"
	"merchant-wallet-ledger/pkg/correlation"
	"merchant-wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// HeaderProviderSignature carries the hex HMAC-SHA512 of the raw webhook body.
	HeaderProviderSignature = "x-provider-signature"
	HeaderRequestID         = "X-Request-ID"

	// MaxWebhookBody caps the signed body read.
	MaxWebhookBody int64 = 1 << 20

	// Context keys
	CtxStoreID = "store_id"
	CtxUserID  = "user_id"
	CtxRole    = "role"
	CtxRawBody = "raw_body"
)

// ProviderSignature verifies x-provider-signature over the raw body before any
// parsing. On success the bytes are stored under CtxRawBody and the body is
// rewound for the handler.
func ProviderSignature(secret string, sigSvc ports.SignatureService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderProviderSignature)
		if signature == "" {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(c, apperror.New(apperror.KindValidation, "VAL_004", "Request body too large", http.StatusRequestEntityTooLarge))
			} else {
				response.Error(c, apperror.Validation("cannot read request body"))
			}
			c.Abort()
			return
		}

		if !sigSvc.Verify(secret, body, signature) {
			log.Warn().Str("provider", c.Param("provider")).Str("client_ip", c.ClientIP()).Msg("webhook signature mismatch")
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Set(CtxRawBody, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// JWTAuth validates the bearer token and stores the caller identity.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenStr == "" {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxRole, claims.Role)
		if claims.StoreID != nil {
			c.Set(CtxStoreID, *claims.StoreID)
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated caller has role.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got, _ := c.Get(CtxRole); got != role {
			response.Error(c, apperror.ErrForbidden())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStore aborts with 403 when the token carries no store.
func RequireStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := StoreID(c); !ok {
			response.Error(c, apperror.ErrForbidden())
			c.Abort()
			return
		}
		c.Next()
	}
}

// StoreID returns the caller's store from the token.
func StoreID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(CtxStoreID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// Actor returns the authenticated account id as the audit actor, or "anonymous".
func Actor(c *gin.Context) string {
	if v, exists := c.Get(CtxUserID); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id.String()
		}
	}
	return "anonymous"
}

// RequestID propagates X-Request-ID, generating one when absent, into the gin
// context, the request context and the response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(response.CtxRequestID, id)
		c.Request = c.Request.WithContext(correlation.WithID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(fmt.Errorf("panic: %v", r)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// SlowPath exports request latency and records requests slower than threshold.
// Routes are labelled by their template so ids do not explode cardinality.
func SlowPath(recorder ports.SlowPathRecorder, metrics ports.MetricsRecorder, threshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if metrics != nil {
			metrics.ObserveRequest(c.Request.Method, route, status, d)
		}
		if recorder != nil && threshold > 0 && d >= threshold {
			recorder.Record(ports.SlowPath{
				Method:     c.Request.Method,
				Path:       route,
				Status:     status,
				Duration:   d,
				ObservedAt: start.Add(d).UTC(),
			})
		}
	}
}
