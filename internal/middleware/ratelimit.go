package middleware

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/cache"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

// Rate limit key strategies.
const (
	RateLimitByUser = "user"
	RateLimitByIP   = "ip"
)

// Limiter takes one token for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (cache.Decision, error)
}

type rateLimitRecorder interface {
	RecordRateLimited()
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Prefix      string
	KeyStrategy string
	Metrics     rateLimitRecorder
	Logger      *zap.Logger
}

// RateLimit throttles callers with a shared token bucket. A limiter outage
// lets the request through.
func RateLimit(limiter Limiter, opts RateLimitOptions) gin.HandlerFunc {
	if opts.Prefix == "" {
		opts.Prefix = "rl"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := opts.Prefix + ":" + rateLimitSubject(c, opts.KeyStrategy)
		decision, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			opts.Logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		if opts.Metrics != nil {
			opts.Metrics.RecordRateLimited()
		}
		response.Error(c, appErrors.ErrRateLimited)
		c.Abort()
	}
}

func rateLimitSubject(c *gin.Context, strategy string) string {
	if strings.EqualFold(strategy, RateLimitByUser) {
		if value, ok := c.Get(ContextUserKey); ok {
			if claims, ok := value.(*models.JWTClaims); ok && claims != nil && claims.UserID != "" {
				return "user:" + claims.UserID
			}
		}
	}
	return "ip:" + c.ClientIP()
}
