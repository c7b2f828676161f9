// API Gatewayサービスのエントリポイント。
// レートリミット、Bearerトークン検証、内部サービスへのリクエスト転送を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/zedtrago/internal/gateway"
	"github.com/nao1215/zedtrago/pkg/logging"
)

func main() {
	logger := logging.New(os.Getenv, "api-gateway")

	cfg, err := gateway.LoadConfig(os.Getenv, logger)
	if err != nil {
		logger.WithError(err).Fatal("設定の読み込みに失敗")
	}

	server, err := gateway.NewServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Gatewayサーバーの初期化に失敗")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("API Gateway listening on port %s", cfg.Port)
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Gatewayサービスの起動に失敗")
	}
}
