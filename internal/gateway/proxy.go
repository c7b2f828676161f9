package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Dispatcher は認証済みのリクエストを転送先サービスにそのまま転送する。
// パスのプレフィックスは取り除かず、転送先は元と同じパスを受け取る。
// 転送は1回のみで、再試行はしない。
type Dispatcher struct {
	proxies map[string]*httputil.ReverseProxy
	logger  logrus.FieldLogger
}

// newTransport は転送先との通信に使うトランスポートを生成する。
func newTransport(responseHeaderTimeout time.Duration) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	return transport
}

// NewDispatcher は有効なルートごとにリバースプロキシを構築する。
func NewDispatcher(table *RouteTable, transport http.RoundTripper, logger logrus.FieldLogger) *Dispatcher {
	d := &Dispatcher{
		proxies: make(map[string]*httputil.ReverseProxy),
		logger:  logger,
	}
	for _, entry := range table.Entries() {
		target := entry.Upstream
		name := entry.Name
		d.proxies[entry.Prefix] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
			},
			Transport:    transport,
			ErrorHandler: d.errorHandler(name),
		}
	}
	return d
}

// Forward はリクエストをentryの転送先に転送し、ステータス・ヘッダー・ボディをそのまま返す。
func (d *Dispatcher) Forward(c *gin.Context, entry RouteEntry) {
	proxy, ok := d.proxies[entry.Prefix]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, notFoundBody(c.Request))
		return
	}
	proxy.ServeHTTP(c.Writer, c.Request)
}

// errorHandler は転送先と通信できなかった場合に5xxを返すハンドラを生成する。
// タイムアウトは504、それ以外は502とする。
func (d *Dispatcher) errorHandler(name string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status, label, message := http.StatusBadGateway, "Bad Gateway", "Upstream unavailable"
		if isTimeout(err) {
			status, label, message = http.StatusGatewayTimeout, "Gateway Timeout", "Upstream timed out"
		}

		d.logger.WithFields(logrus.Fields{
			"service": name,
			"method":  r.Method,
			"path":    r.URL.Path,
			"status":  status,
		}).WithError(err).Warn("プロキシエラー")

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(gin.H{
			"statusCode": status,
			"error":      label,
			"message":    message,
		})
	}
}

// isTimeout は転送先のタイムアウトによるエラーかを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
