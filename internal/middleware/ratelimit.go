package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/pkg/errcode"
	"github.com/xxxsen/mrecall/internal/pkg/response"
)

const defaultRateLimitKeys = 4096

// rateLimiter admits one request per key per window. Keys expire with the
// window, so the tracked set stays bounded by the LRU size.
type rateLimiter struct {
	window time.Duration
	seen   *expirable.LRU[string, struct{}]
}

func RateLimit(window time.Duration) gin.HandlerFunc {
	return newRateLimiter(window, defaultRateLimitKeys).handle
}

func newRateLimiter(window time.Duration, size int) *rateLimiter {
	l := &rateLimiter{window: window}
	if window > 0 {
		l.seen = expirable.NewLRU[string, struct{}](size, nil, window)
	}
	return l
}

func rateKey(c *gin.Context) (string, string, string) {
	ip := c.ClientIP()
	uid := "0"
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			uid = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return strings.Join([]string{ip, uid, path}, "|"), uid, path
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.seen == nil {
		c.Next()
		return
	}
	key, uid, path := rateKey(c)
	if l.seen.Contains(key) {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", c.ClientIP()),
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.seen.Add(key, struct{}{})
	c.Next()
}
