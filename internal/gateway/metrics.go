package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// contextKeyRoute はメトリクスのラベルに使うルートをGinコンテキストに格納するキー。
const contextKeyRoute = "route"

// routeUnmatched はどのルートにも一致しなかったリクエストのラベル。
const routeUnmatched = "unmatched"

// methodOther は標準以外のHTTPメソッドのラベル。
const methodOther = "other"

// knownMethods はそのままラベルに使うHTTPメソッド。
var knownMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// methodLabel はクライアントが任意に指定できるメソッドをラベル用の有限集合に丸める。
func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return methodOther
}

// metrics はGatewayのPrometheusメトリクス。
type metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	rateLimited  prometheus.Counter
	dependencyUp *prometheus.GaugeVec
}

// newMetrics はregに登録したメトリクスを生成する。
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "http_requests_total",
			Help:      "Number of completed requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "Request latency from entry to response completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "rate_limited_total",
			Help:      "Number of requests rejected by the rate limiter.",
		}),
		dependencyUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "dependency_up",
			Help:      "Result of the last readiness probe per dependency (1 = ok).",
		}, []string{"name"}),
	}
}

// instrument はリクエスト数とレイテンシを記録するGinミドルウェアを返す。
// ラベルには生のパスではなく一致したルートのプレフィックスを使う。
func (m *metrics) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.GetString(contextKeyRoute)
		if route == "" {
			route = c.FullPath()
		}
		if route == "" {
			route = routeUnmatched
		}
		method := methodLabel(c.Request.Method)
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// onRateLimited はレートリミットで拒否されたリクエストを数える。
func (m *metrics) onRateLimited(*gin.Context) {
	m.rateLimited.Inc()
}

// observeDependency はヘルスチェック結果をゲージに反映する。
func (m *metrics) observeDependency(r DependencyResult) {
	v := 0.0
	if r.OK {
		v = 1
	}
	m.dependencyUp.WithLabelValues(r.Name).Set(v)
}
