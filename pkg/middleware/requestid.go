package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID はリクエストを追跡するためのヘッダー。
const HeaderRequestID = "X-Request-Id"

const contextKeyRequestID = "request_id"

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// クライアントが指定したIDがあればそれを使い、無ければUUIDを生成する。
// IDはレスポンスヘッダーと転送先へのリクエストヘッダーの両方に設定する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Request.Header.Set(HeaderRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Set(contextKeyRequestID, id)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
