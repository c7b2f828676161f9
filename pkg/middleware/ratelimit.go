package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/zedtrago/pkg/ratelimit"
)

// RateLimiter はリクエストごとに通過可否を判定するカウンタ。
type RateLimiter interface {
	Allow() ratelimit.Decision
	Window() time.Duration
}

// RateLimit はプロセス全体で共有するレートリミットを適用するGinミドルウェアを返す。
// 公開パスを含む全リクエストに適用するため、認証より前に登録すること。
// onRejectは拒否時に呼ばれる（nil可）。
func RateLimit(limiter RateLimiter, onReject func(*gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := limiter.Allow()
		resetSeconds := int(math.Ceil(d.ResetAfter.Seconds()))

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSeconds))

		if !d.Allowed {
			if onReject != nil {
				onReject(c)
			}
			c.Header("Retry-After", strconv.Itoa(resetSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"statusCode": http.StatusTooManyRequests,
				"error":      "Too Many Requests",
				"message":    fmt.Sprintf("Rate limit exceeded, retry in %s", humanizeDuration(limiter.Window())),
			})
			return
		}
		c.Next()
	}
}

// humanizeDuration は "1 minute" や "30 seconds" のような表記に変換する。
func humanizeDuration(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
		{time.Second, "second"},
	}
	for _, u := range units {
		if d >= u.size && d%u.size == 0 {
			n := int64(d / u.size)
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return fmt.Sprintf("%d ms", d.Milliseconds())
}
