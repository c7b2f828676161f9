// Package logging は全サービスで共通のlogrusロガーを生成する。
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New は環境変数に従ってロガーを生成する。
//
// LOG_LEVEL でレベル（既定はinfo）、LOG_FORMAT=text でテキスト形式を指定する。
// それ以外はJSON形式で出力する。serviceは全ログ行のserviceフィールドになる。
func New(getenv func(string) string, service string) *logrus.Entry {
	logger := logrus.New()
	logger.Out = os.Stdout

	if strings.EqualFold(getenv("LOG_FORMAT"), "text") {
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	} else {
		logger.Formatter = &logrus.JSONFormatter{}
	}

	logger.Level = logrus.InfoLevel
	if lv := getenv("LOG_LEVEL"); lv != "" {
		if parsed, err := logrus.ParseLevel(lv); err == nil {
			logger.Level = parsed
		} else {
			logger.WithField("LOG_LEVEL", lv).Warn("ログレベルが不正なためinfoを使用します")
		}
	}

	return logger.WithField("service", service)
}
