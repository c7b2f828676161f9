package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// ErrOverlappingPrefix は同じ、または重なり合うプレフィックスが設定された場合のエラー。
	ErrOverlappingPrefix = errors.New("ルートのプレフィックスが重複しています")
	// ErrInvalidPrefix はプレフィックスの形式が不正な場合のエラー。
	ErrInvalidPrefix = errors.New("ルートのプレフィックスが不正です")
	// ErrInvalidUpstream は転送先URLの形式が不正な場合のエラー。
	ErrInvalidUpstream = errors.New("転送先URLが不正です")
)

// RouteEntry はパスのプレフィックスと転送先の対応。
type RouteEntry struct {
	// Name は転送先サービス名。
	Name string
	// Prefix はパスのプレフィックス（例: "/bookings"）。
	Prefix string
	// Upstream は転送先のベースURL。nilの場合このルートは無効。
	Upstream *url.URL
}

// Enabled は転送先が設定されているかを返す。
func (e RouteEntry) Enabled() bool {
	return e.Upstream != nil
}

// matches はパスがプレフィックスにセグメント境界で一致するかを判定する。
// "/auth" は "/auth" と "/auth/login" に一致し、"/authx" には一致しない。
func (e RouteEntry) matches(path string) bool {
	return path == e.Prefix || strings.HasPrefix(path, e.Prefix+"/")
}

// Dependency はヘルスチェック対象のサービス。
type Dependency struct {
	// Name はサービス名。
	Name string
	// URL はベースURL。空の場合は未設定として扱う。
	URL string
}

// RouteTable は起動時に構築される読み取り専用のルーティング表。
// 構築後は変更されないため、並行アクセスに同期は不要。
type RouteTable struct {
	entries []RouteEntry
}

// NewRouteTable はサービス設定からルーティング表を構築する。
// 転送先URLが空のルートは警告を出して無効化する。
func NewRouteTable(services []ServiceConfig, logger logrus.FieldLogger) (*RouteTable, error) {
	table := &RouteTable{entries: make([]RouteEntry, 0, len(services))}

	for _, svc := range services {
		if !strings.HasPrefix(svc.Prefix, "/") || svc.Prefix == "/" || strings.HasSuffix(svc.Prefix, "/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, svc.Prefix)
		}
		for _, existing := range table.entries {
			if existing.matches(svc.Prefix) || (RouteEntry{Prefix: svc.Prefix}).matches(existing.Prefix) {
				return nil, fmt.Errorf("%w: %q と %q", ErrOverlappingPrefix, existing.Prefix, svc.Prefix)
			}
		}

		entry := RouteEntry{Name: svc.Name, Prefix: svc.Prefix}
		if svc.URL == "" {
			logger.WithField("prefix", svc.Prefix).Warnf("Missing upstream for %s; route disabled.", svc.Prefix)
		} else {
			u, err := url.Parse(svc.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, fmt.Errorf("%w: %s=%q", ErrInvalidUpstream, svc.Name, svc.URL)
			}
			entry.Upstream = u
		}
		table.entries = append(table.entries, entry)
	}
	return table, nil
}

// Resolve はパスに一致する有効なルートを返す。
// 一致するルートが無い、または無効化されている場合はfalseを返す。
func (t *RouteTable) Resolve(path string) (RouteEntry, bool) {
	for _, e := range t.entries {
		if e.matches(path) {
			return e, e.Enabled()
		}
	}
	return RouteEntry{}, false
}

// Entries は有効なルートを設定順に返す。
func (t *RouteTable) Entries() []RouteEntry {
	entries := make([]RouteEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Enabled() {
			entries = append(entries, e)
		}
	}
	return entries
}

// Dependencies はヘルスチェック対象のサービスを設定順に返す。
// 無効化されたルートはURLが空のまま含まれる。
func (t *RouteTable) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(t.entries))
	for _, e := range t.entries {
		dep := Dependency{Name: e.Name}
		if e.Upstream != nil {
			dep.URL = e.Upstream.String()
		}
		deps = append(deps, dep)
	}
	return deps
}
