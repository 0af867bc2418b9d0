package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contextKeyRequestID = "request_id"
	contextKeyUserID    = "user_id"
	contextKeyEmail     = "user_email"
	contextKeyRoles     = "user_roles"
)

// requestIDMiddleware assigns a request id used by both logging and the
// ErrorResponse envelope.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// loggingMiddleware emits one structured line per request.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// recoveryMiddleware converts a panic into a 500 ErrorResponse instead of
// crashing the process.
func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.String("request_id", requestID(c)))
				fail(c, 500, ErrCodeInternal, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// identityMiddleware reads the caller identity set by upstream auth
// middleware (out of scope per spec.md §1) and injects it into the
// context. It never verifies the headers itself.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyUserID, c.GetHeader("X-User-Id"))
		c.Set(contextKeyEmail, c.GetHeader("X-User-Email"))
		c.Set(contextKeyRoles, c.GetHeader("X-User-Roles"))
		c.Next()
	}
}

func callerUserID(c *gin.Context) string {
	v, _ := c.Get(contextKeyUserID)
	s, _ := v.(string)
	return s
}
