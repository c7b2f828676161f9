package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/zedtrago/pkg/middleware"
)

const (
	// pingTimeout はヘルスチェック時のデータベース疎通確認のタイムアウト。
	pingTimeout = 2 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 10 * time.Second
)

// Pinger はヘルスチェックで疎通を確認する接続。*sql.DB が満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server は内部サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// name はサービス名。レスポンスのserviceフィールドになる。
	name string
	// port はサーバーのリッスンポート。
	port string
	// db はデータベース接続。nilの場合は疎通確認をしない。
	db Pinger
	// logger はアプリケーションログの出力先。
	logger logrus.FieldLogger
	// now は現在時刻の取得関数。
	now func() time.Time
}

// NewServer は新しいサービスサーバーを生成する。dbはnilでもよい。
func NewServer(name, port string, db Pinger, logger logrus.FieldLogger) *Server {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router: router,
		name:   name,
		port:   port,
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	s.setupRoutes()

	return s
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("HTTPサーバーを起動します")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗 (%s): %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// healthResponse は /health のレスポンス。
type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// handleHealth はサービスの死活を返すハンドラを返す。
// データベースに接続できない場合は503を返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if s.db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				s.logger.WithError(err).Warn("データベースの疎通確認に失敗しました")
				status, code = "error", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, healthResponse{
			Status:    status,
			Service:   s.name,
			Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
}
