// 予約サービスのエントリポイント。
// 起動時にDATABASE_URLで指定されたデータベースに接続してスキーマを適用し、/health で疎通状況を返す。
package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/nao1215/zedtrago/internal/service"
	"github.com/nao1215/zedtrago/pkg/database"
	"github.com/nao1215/zedtrago/pkg/logging"
)

const serviceName = "booking-service"

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	logger := logging.New(os.Getenv, serviceName)
	if err := run(logger); err != nil {
		logger.WithError(err).Fatal("予約サービスの起動に失敗")
	}
}

func run(logger logrus.FieldLogger) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3004"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := database.LoadOptions(os.Getenv)
	if err != nil {
		return fmt.Errorf("データベース設定の読み込みに失敗: %w", err)
	}
	db, err := database.Open(ctx, opts, logger)
	if err != nil {
		return fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	defer db.Close()

	if _, err := database.Migrate(ctx, db, database.DriverName(opts.URL), migrationsFS, "migrations", logger); err != nil {
		return fmt.Errorf("マイグレーションの適用に失敗: %w", err)
	}

	logger.Infof("%s listening on port %s", serviceName, port)
	return service.NewServer(serviceName, port, db, logger).Run(ctx)
}
