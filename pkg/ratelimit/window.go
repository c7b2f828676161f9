// Package ratelimit はプロセス全体で共有する固定ウィンドウ方式のレートリミッタを提供する。
//
// クライアント単位ではなく、全リクエストで1つのカウンタを共有する。
// カウンタはウィンドウ期間ごとにリセットされる。
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrInvalidSettings は最大リクエスト数やウィンドウ期間が不正な場合のエラー。
var ErrInvalidSettings = errors.New("レートリミット設定が不正です")

// Decision は1リクエストに対する判定結果。
type Decision struct {
	// Allowed はリクエストを通過させてよいかどうか。
	Allowed bool
	// Limit はウィンドウ内の最大リクエスト数。
	Limit int
	// Remaining は現在のウィンドウで残っているリクエスト数。
	Remaining int
	// ResetAfter は現在のウィンドウが終わるまでの時間。
	ResetAfter time.Duration
}

// FixedWindow は固定ウィンドウのリクエストカウンタ。
// 複数のゴルーチンから同時に呼び出しても安全。
type FixedWindow struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	now         func() time.Time
	windowStart time.Time
	count       int
}

// Option はFixedWindowの生成オプション。
type Option func(*FixedWindow)

// WithClock は現在時刻の取得関数を差し替える。テストで時間を進めるために使う。
func WithClock(now func() time.Time) Option {
	return func(w *FixedWindow) {
		w.now = now
	}
}

// NewFixedWindow はwindow期間あたりmax件まで許可するカウンタを生成する。
func NewFixedWindow(maxRequests int, window time.Duration, opts ...Option) (*FixedWindow, error) {
	if maxRequests <= 0 || window <= 0 {
		return nil, ErrInvalidSettings
	}
	w := &FixedWindow{
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Allow はカウンタを1つ進め、上限を超えていないかを判定する。
// ウィンドウは最初のリクエスト時刻から始まり、期間経過後の最初のリクエストで新しく始まる。
func (w *FixedWindow) Allow() Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.windowStart.IsZero() || !now.Before(w.windowStart.Add(w.window)) {
		w.windowStart = now
		w.count = 0
	}
	w.count++

	remaining := w.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:    w.count <= w.max,
		Limit:      w.max,
		Remaining:  remaining,
		ResetAfter: w.windowStart.Add(w.window).Sub(now),
	}
}

// Window はウィンドウ期間を返す。
func (w *FixedWindow) Window() time.Duration {
	return w.window
}
