package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout はクライアント全体のタイムアウト。
// 個々のプローブのタイムアウトは呼び出し側がコンテキストで指定する。
const DefaultTimeout = 30 * time.Second

// StatusError は転送先が2xx以外のステータスを返したことを表す。
type StatusError struct {
	// URL はリクエスト先のURL。
	URL string
	// StatusCode は転送先が返したHTTPステータスコード。
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTPエラー: url=%s, status=%d", e.URL, e.StatusCode)
}

// Client はサービス間のヘルスチェックに使うHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は新しいHTTPクライアントを生成する。
func New() *Client {
	return NewWithHTTPClient(&http.Client{
		Timeout: DefaultTimeout,
	})
}

// NewWithHTTPClient は既存の*http.Clientを使うクライアントを生成する。
// テストでトランスポートを差し替える場合に使う。
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// CheckHealth はbaseURLの /health にGETリクエストを送信する。
// 2xxなら成功とし、それ以外のステータスは*StatusErrorを返す。
// レスポンスボディの形式は問わない。
func (c *Client) CheckHealth(ctx context.Context, baseURL string) error {
	url := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()
	// コネクションを再利用するためにボディを読み捨てる
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return nil
}
