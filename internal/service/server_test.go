package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/nao1215/zedtrago/pkg/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePinger は疎通確認の結果を固定で返す。
type fakePinger struct {
	err error
}

func (p fakePinger) PingContext(context.Context) error { return p.err }

// getHealth は GET /health を送信してレスポンスをデコードする。
func getHealth(t *testing.T, s *Server) (int, healthResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v", err)
	}
	return w.Code, body
}

// TestHealth は GET /health を検証する。
func TestHealth(t *testing.T) {
	t.Parallel()

	t.Run("データベースが無い場合はokを返すこと", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		s := NewServer("currency-service", "0", nil, logger)
		s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

		code, body := getHealth(t, s)
		if code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", code, http.StatusOK)
		}
		want := healthResponse{Status: "ok", Service: "currency-service", Timestamp: "2026-05-01T12:00:00.000Z"}
		if body != want {
			t.Errorf("body = %+v, want %+v", body, want)
		}
	})

	t.Run("データベースに接続できる場合はokを返すこと", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		db, err := database.Open(context.Background(), database.Options{URL: "sqlite://file::memory:"}, logger)
		if err != nil {
			t.Fatalf("database.Open()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		code, body := getHealth(t, NewServer("booking-service", "0", db, logger))
		if code != http.StatusOK || body.Status != "ok" {
			t.Errorf("got %d %+v", code, body)
		}
	})

	t.Run("データベースに接続できない場合は503とerrorを返すこと", func(t *testing.T) {
		t.Parallel()

		logger, hook := logtest.NewNullLogger()
		s := NewServer("booking-service", "0", fakePinger{err: errors.New("connection refused")}, logger)

		code, body := getHealth(t, s)
		if code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", code, http.StatusServiceUnavailable)
		}
		if body.Status != "error" || body.Service != "booking-service" {
			t.Errorf("body = %+v", body)
		}

		var warned bool
		for _, e := range hook.AllEntries() {
			if e.Message == "データベースの疎通確認に失敗しました" {
				warned = true
			}
		}
		if !warned {
			t.Error("警告ログが出力されていない")
		}
	})

	t.Run("閉じたデータベースは503を返すこと", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		db, err := database.Open(context.Background(), database.Options{URL: "sqlite://file::memory:"}, logger)
		if err != nil {
			t.Fatalf("database.Open()でエラーが発生: %v", err)
		}
		_ = db.Close()

		code, _ := getHealth(t, NewServer("booking-service", "0", db, logger))
		if code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", code, http.StatusServiceUnavailable)
		}
	})

	t.Run("X-Request-Idが付与されること", func(t *testing.T) {
		t.Parallel()

		logger, _ := logtest.NewNullLogger()
		s := NewServer("currency-service", "0", nil, logger)

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Header().Get("X-Request-Id") == "" {
			t.Error("X-Request-Idヘッダーが無い")
		}
	})
}

// TestAccessLog はアクセスログの記録を検証する。
func TestAccessLog(t *testing.T) {
	t.Parallel()

	t.Run("パニックしたリクエストも500として1行記録されること", func(t *testing.T) {
		t.Parallel()

		logger, hook := logtest.NewNullLogger()
		s := NewServer("booking-service", "0", nil, logger)
		s.router.GET("/boom", func(*gin.Context) {
			panic("boom")
		})

		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusInternalServerError)
		}
		var lines []string
		for _, e := range hook.AllEntries() {
			if _, ok := e.Data["duration_ms"]; ok {
				lines = append(lines, e.Message)
			}
		}
		if len(lines) != 1 || !strings.HasPrefix(lines[0], "GET /boom 500 ") {
			t.Errorf("アクセスログ = %v", lines)
		}
	})
}

// TestRun はサーバーの起動と停止を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	logger, _ := logtest.NewNullLogger()
	s := NewServer("currency-service", "0", nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run()がエラーを返した: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run()が停止しない")
	}
}
