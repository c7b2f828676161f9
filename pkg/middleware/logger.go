package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AccessLog はリクエスト完了時に1行のアクセスログを出力するGinミドルウェアを返す。
// 拒否されたリクエストやパニックしたリクエストも含め、全てのリクエストについて
// "METHOD path status 12.3ms" 形式で記録する。
// 認証済みのリクエストにはuser_idフィールドを付与する。
func AccessLog(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		defer func() {
			durationMs := float64(time.Since(start).Microseconds()) / 1000
			status := c.Writer.Status()

			fields := logrus.Fields{
				"method":      c.Request.Method,
				"path":        path,
				"status":      status,
				"duration_ms": durationMs,
				"request_id":  GetRequestID(c),
			}
			if claims, ok := GetClaims(c); ok {
				fields["user_id"] = claims.Subject
			}
			logger.WithFields(fields).Infof("%s %s %d %.1fms", c.Request.Method, path, status, durationMs)
		}()

		c.Next()
	}
}
