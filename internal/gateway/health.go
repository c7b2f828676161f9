package gateway

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeStatus は依存サービス1つ分のヘルスチェック結果。
type ProbeStatus string

const (
	// ProbeOK は依存サービスが2xxを返したことを表す。
	ProbeOK ProbeStatus = "ok"
	// ProbeError は依存サービスが2xx以外を返したか、通信に失敗したことを表す。
	ProbeError ProbeStatus = "error"
	// ProbeMissing は依存サービスのURLが設定されていないことを表す。
	ProbeMissing ProbeStatus = "missing"
)

const (
	// ReadinessOK は全ての依存サービスが正常であることを表す。
	ReadinessOK = "ok"
	// ReadinessDegraded は1つ以上の依存サービスが異常であることを表す。
	ReadinessDegraded = "degraded"
)

// DependencyResult は依存サービス1つ分のヘルスチェック結果。
// /health/ready の呼び出しごとに生成し、キャッシュしない。
type DependencyResult struct {
	Name   string      `json:"name"`
	Status ProbeStatus `json:"status"`
	OK     bool        `json:"ok"`
}

// Readiness は依存サービス全体の集約結果。
type Readiness struct {
	// Status は "ok" または "degraded"。
	Status string
	// Dependencies は依存サービスごとの結果。入力と同じ順序。
	Dependencies []DependencyResult
}

// Prober は依存サービスのヘルスチェックを行う。
type Prober interface {
	CheckHealth(ctx context.Context, baseURL string) error
}

// HealthAggregator は依存サービスのヘルスチェックを並行に実行して集約する。
type HealthAggregator struct {
	prober  Prober
	timeout time.Duration
	// observe は各プローブの結果を受け取るフック（nil可）。
	observe func(DependencyResult)
}

// NewHealthAggregator はプローブごとにtimeoutを適用するHealthAggregatorを生成する。
func NewHealthAggregator(prober Prober, timeout time.Duration) *HealthAggregator {
	return &HealthAggregator{prober: prober, timeout: timeout}
}

// CheckReadiness は全ての依存サービスに並行してヘルスチェックを行う。
//
// 各プローブは独立したタイムアウトを持ち、1つの失敗や遅延が他のプローブを
// 中断することはない。失敗は結果に反映されるだけで、エラーとしては返さない。
func (a *HealthAggregator) CheckReadiness(ctx context.Context, deps []Dependency) Readiness {
	results := make([]DependencyResult, len(deps))

	// 1つのプローブの失敗で兄弟プローブをキャンセルしないこと。
	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			results[i] = a.probe(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	status := ReadinessOK
	for _, r := range results {
		if a.observe != nil {
			a.observe(r)
		}
		if !r.OK {
			status = ReadinessDegraded
		}
	}
	return Readiness{Status: status, Dependencies: results}
}

// probe は依存サービス1つにヘルスチェックを行う。
// URLが未設定の場合は通信せずにmissingを返す。
func (a *HealthAggregator) probe(ctx context.Context, dep Dependency) DependencyResult {
	if dep.URL == "" {
		return DependencyResult{Name: dep.Name, Status: ProbeMissing, OK: false}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.prober.CheckHealth(ctx, dep.URL); err != nil {
		return DependencyResult{Name: dep.Name, Status: ProbeError, OK: false}
	}
	return DependencyResult{Name: dep.Name, Status: ProbeOK, OK: true}
}
