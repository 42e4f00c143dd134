package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ureshii/partner/internal/ratelimit"
)

// RateLimit returns a middleware enforcing token-bucket admission for one
// endpoint class. The bucket key is the authenticated user when present,
// falling back to the client IP. Denied requests never reach the job
// store.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := Owner(c)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, retryAfter := limiter.Allow(key)
		if !allowed {
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}
