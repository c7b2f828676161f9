package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("既定ではinfoレベルのJSON形式になること", func(t *testing.T) {
		t.Parallel()

		entry := New(func(string) string { return "" }, "api-gateway")
		if entry.Logger.Level != logrus.InfoLevel {
			t.Errorf("Level = %v, want %v", entry.Logger.Level, logrus.InfoLevel)
		}
		if _, ok := entry.Logger.Formatter.(*logrus.JSONFormatter); !ok {
			t.Errorf("Formatter = %T, want *logrus.JSONFormatter", entry.Logger.Formatter)
		}
		if entry.Data["service"] != "api-gateway" {
			t.Errorf("service = %v, want %q", entry.Data["service"], "api-gateway")
		}
	})

	t.Run("LOG_LEVELとLOG_FORMATを反映すること", func(t *testing.T) {
		t.Parallel()

		env := map[string]string{"LOG_LEVEL": "debug", "LOG_FORMAT": "TEXT"}
		entry := New(func(k string) string { return env[k] }, "booking-service")
		if entry.Logger.Level != logrus.DebugLevel {
			t.Errorf("Level = %v, want %v", entry.Logger.Level, logrus.DebugLevel)
		}
		if _, ok := entry.Logger.Formatter.(*logrus.TextFormatter); !ok {
			t.Errorf("Formatter = %T, want *logrus.TextFormatter", entry.Logger.Formatter)
		}
	})

	t.Run("不正なLOG_LEVELはinfoになること", func(t *testing.T) {
		t.Parallel()

		entry := New(func(k string) string {
			if k == "LOG_LEVEL" {
				return "verbose"
			}
			return ""
		}, "api-gateway")
		if entry.Logger.Level != logrus.InfoLevel {
			t.Errorf("Level = %v, want %v", entry.Logger.Level, logrus.InfoLevel)
		}
	})
}
