// 為替サービスのエントリポイント。データベースを持たない。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/zedtrago/internal/service"
	"github.com/nao1215/zedtrago/pkg/logging"
)

const serviceName = "currency-service"

func main() {
	logger := logging.New(os.Getenv, serviceName)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3008"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("%s listening on port %s", serviceName, port)
	if err := service.NewServer(serviceName, port, nil, logger).Run(ctx); err != nil {
		logger.WithError(err).Fatal("為替サービスの起動に失敗")
	}
}
