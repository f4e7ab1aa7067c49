package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/givingdesk/internal/observability/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

// AdminAuthRequired checks the bearer token against ADMIN_TOKEN_HASH.
// Without a configured hash the admin surface stays closed.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	hash := []byte(s.cfg.AdminTokenHash)
	return func(c *gin.Context) {
		if len(hash) == 0 {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// CheckoutRateLimit throttles payment initiation per client IP. Limiter
// failures let the request through.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.checkoutLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			obslogger.WithContext(c.Request.Context(), s.log).Warn("checkout rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
