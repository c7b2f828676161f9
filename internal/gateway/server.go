package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/zedtrago/pkg/httpclient"
	"github.com/nao1215/zedtrago/pkg/middleware"
	"github.com/nao1215/zedtrago/pkg/ratelimit"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 10 * time.Second

// Server はAPI GatewayのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// config は起動時に読み込んだ設定。
	config Config
	// logger はアプリケーションログの出力先。
	logger logrus.FieldLogger
	// routes はパスと転送先の対応表。
	routes *RouteTable
	// dispatcher は転送先へのリバースプロキシ。
	dispatcher *Dispatcher
	// health は依存サービスのヘルスチェック集約。
	health *HealthAggregator
	// limiter は全リクエストで共有するレートリミッタ。
	limiter *ratelimit.FixedWindow
	// verifier はBearerトークンの検証器。
	verifier *middleware.TokenVerifier
	// registry はPrometheusメトリクスのレジストリ。
	registry *prometheus.Registry
	// metrics はリクエストとヘルスチェックのメトリクス。
	metrics *metrics
	// now は現在時刻の取得関数。
	now func() time.Time
}

// serverOptions はNewServerのオプション。
type serverOptions struct {
	now       func() time.Time
	prober    Prober
	transport http.RoundTripper
}

// Option はNewServerのオプション。
type Option func(*serverOptions)

// WithClock は現在時刻の取得関数を差し替える。レートリミットとタイムスタンプに使う。
func WithClock(now func() time.Time) Option {
	return func(o *serverOptions) { o.now = now }
}

// WithProber は依存サービスのヘルスチェック方法を差し替える。
func WithProber(p Prober) Option {
	return func(o *serverOptions) { o.prober = p }
}

// WithTransport は転送先との通信に使うトランスポートを差し替える。
func WithTransport(rt http.RoundTripper) Option {
	return func(o *serverOptions) { o.transport = rt }
}

// NewServer は新しいGatewayサーバーを生成する。
// ルーティング表、レートリミッタ、トークン検証器を起動時に構築し、以降は変更しない。
func NewServer(cfg Config, logger logrus.FieldLogger, opts ...Option) (*Server, error) {
	o := serverOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.prober == nil {
		o.prober = httpclient.New()
	}
	if o.transport == nil {
		o.transport = newTransport(cfg.UpstreamTimeout)
	}

	routes, err := NewRouteTable(cfg.Services, logger)
	if err != nil {
		return nil, fmt.Errorf("ルーティング表の構築に失敗: %w", err)
	}

	limiter, err := ratelimit.NewFixedWindow(cfg.RateLimitMax, cfg.RateLimitWindow, ratelimit.WithClock(o.now))
	if err != nil {
		return nil, fmt.Errorf("レートリミッタの初期化に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := newMetrics(registry)

	health := NewHealthAggregator(o.prober, probeTimeout)
	health.observe = m.observeDependency

	router := gin.New()
	router.RedirectTrailingSlash = false

	s := &Server{
		router:     router,
		config:     cfg,
		logger:     logger,
		routes:     routes,
		dispatcher: NewDispatcher(routes, o.transport, logger),
		health:     health,
		limiter:    limiter,
		verifier:   middleware.NewTokenVerifier(cfg.JWTSecret),
		registry:   registry,
		metrics:    m,
		now:        o.now,
	}
	s.setupRoutes()

	return s, nil
}

// setupRoutes はミドルウェアとルーティングを設定する。
//
// パニックした500応答も記録するため、RecoveryはAccessLogとメトリクスの内側に置く。
// レートリミットは公開パスを含む全リクエストに適用するため、認証より前に置く。
// /health と /health/ready 以外のパスは全てルーティング表に従って転送する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.AccessLog(s.logger))
	s.router.Use(s.metrics.instrument())
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RateLimit(s.limiter, s.metrics.onRateLimited))
	s.router.Use(middleware.Authenticate(s.verifier, publicPrefixes))

	// ヘルスチェック（認証不要）
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/health/ready", s.handleReadiness())

	// 内部サービスへのプロキシ
	s.router.NoRoute(s.handleProxy())
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
// METRICS_PORTが設定されている場合は別ポートでメトリクスを公開する。
func (s *Server) Run(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%s", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if s.config.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%s", s.config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			s.logger.WithField("addr", srv.Addr).Info("HTTPサーバーを起動します")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTPサーバーの起動に失敗 (%s): %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				s.logger.WithError(err).WithField("addr", srv.Addr).Warn("シャットダウンに失敗しました")
			}
		}
		return nil
	})
	return g.Wait()
}

// healthResponse は /health のレスポンス。
type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// readinessResponse は /health/ready のレスポンス。
type readinessResponse struct {
	Status       string             `json:"status"`
	Service      string             `json:"service"`
	Timestamp    string             `json:"timestamp"`
	Dependencies []DependencyResult `json:"dependencies"`
}

// timestamp はミリ秒精度のISO 8601形式（UTC）で現在時刻を返す。
func (s *Server) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// handleHealth はGateway自身の死活を返すハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{
			Status:    "ok",
			Service:   serviceName,
			Timestamp: s.timestamp(),
		})
	}
}

// handleReadiness は依存サービスのヘルスチェックを集約して返すハンドラを返す。
// 依存サービスが異常でもステータスコードは200で、statusが "degraded" になる。
func (s *Server) handleReadiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		readiness := s.health.CheckReadiness(c.Request.Context(), s.routes.Dependencies())
		c.JSON(http.StatusOK, readinessResponse{
			Status:       readiness.Status,
			Service:      serviceName,
			Timestamp:    s.timestamp(),
			Dependencies: readiness.Dependencies,
		})
	}
}

// handleProxy はルーティング表に従ってリクエストを転送するハンドラを返す。
// 一致するルートが無い、または転送先が未設定の場合は404を返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, ok := s.routes.Resolve(c.Request.URL.Path)
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, notFoundBody(c.Request))
			return
		}
		c.Set(contextKeyRoute, entry.Prefix)
		s.dispatcher.Forward(c, entry)
	}
}

// notFoundBody は転送先が無いリクエストへの404レスポンスボディを返す。
func notFoundBody(r *http.Request) gin.H {
	return gin.H{
		"statusCode": http.StatusNotFound,
		"error":      "Not Found",
		"message":    fmt.Sprintf("Route %s:%s not found", r.Method, r.URL.Path),
	}
}
