package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// serviceName はヘルスチェックのレスポンスに含めるサービス名。
	serviceName = "api-gateway"
	// defaultJWTSecret はJWT_SECRET未設定時の開発用秘密鍵。
	defaultJWTSecret = "dev-secret-key"
	// probeTimeout は各依存サービスへのヘルスチェックのタイムアウト。
	probeTimeout = 2000 * time.Millisecond
)

// publicPrefixes は認証なしでアクセスできるパスのプレフィックス。
// ルートテーブルとは独立しており、/auth は公開かつ転送対象でもある。
var publicPrefixes = []string{"/auth", "/health"}

// ServiceConfig は転送先サービス1つ分の設定。
type ServiceConfig struct {
	// Name はサービス名。ヘルスチェック結果の識別子になる。
	Name string
	// Prefix はこのサービスに転送するパスのプレフィックス。
	Prefix string
	// URL は転送先のベースURL。空の場合そのルートは無効になる。
	URL string
}

// serviceDefinition はサービスと環境変数の対応。
type serviceDefinition struct {
	name   string
	prefix string
	env    string
}

// serviceDefinitions は転送先サービスの一覧。ヘルスチェックもこの順で結果を返す。
var serviceDefinitions = []serviceDefinition{
	{name: "auth-service", prefix: "/auth", env: "AUTH_SERVICE_URL"},
	{name: "user-service", prefix: "/users", env: "USER_SERVICE_URL"},
	{name: "hotel-service", prefix: "/hotels", env: "HOTEL_SERVICE_URL"},
	{name: "tour-service", prefix: "/tours", env: "TOUR_SERVICE_URL"},
	{name: "booking-service", prefix: "/bookings", env: "BOOKING_SERVICE_URL"},
	{name: "payment-service", prefix: "/payments", env: "PAYMENT_SERVICE_URL"},
	{name: "notification-service", prefix: "/notifications", env: "NOTIFICATION_SERVICE_URL"},
	{name: "reporting-service", prefix: "/reports", env: "REPORTING_SERVICE_URL"},
	{name: "currency-service", prefix: "/currency", env: "CURRENCY_SERVICE_URL"},
	{name: "search-service", prefix: "/search", env: "SEARCH_SERVICE_URL"},
}

// Config はGatewayサーバーの設定。起動時に環境変数から読み込む。
type Config struct {
	// Port はAPIのリッスンポート。
	Port string
	// MetricsPort はPrometheusメトリクスのリッスンポート。空なら無効。
	MetricsPort string
	// JWTSecret はトークン検証用の秘密鍵。
	JWTSecret string
	// RateLimitMax はウィンドウあたりの最大リクエスト数。
	RateLimitMax int
	// RateLimitWindow はレートリミットのウィンドウ期間。
	RateLimitWindow time.Duration
	// UpstreamTimeout は転送先のレスポンスヘッダーを待つ最大時間。
	UpstreamTimeout time.Duration
	// Services は転送先サービスの一覧。
	Services []ServiceConfig
}

// LoadConfig は環境変数からGatewayの設定を読み込む。
func LoadConfig(getenv func(string) string, logger logrus.FieldLogger) (Config, error) {
	cfg := Config{
		Port:        getEnvOr(getenv, "PORT", "3000"),
		MetricsPort: getenv("METRICS_PORT"),
		JWTSecret:   getenv("JWT_SECRET"),
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRETが設定されていないため開発用の秘密鍵を使用します")
		cfg.JWTSecret = defaultJWTSecret
	}

	maxRequests, err := strconv.Atoi(getEnvOr(getenv, "RATE_LIMIT_MAX", "200"))
	if err != nil || maxRequests <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAXの値が不正です: %q", getenv("RATE_LIMIT_MAX"))
	}
	cfg.RateLimitMax = maxRequests

	if cfg.RateLimitWindow, err = ParseWindow(getEnvOr(getenv, "RATE_LIMIT_WINDOW", "1 minute")); err != nil {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOWの値が不正です: %w", err)
	}

	if cfg.UpstreamTimeout, err = time.ParseDuration(getEnvOr(getenv, "UPSTREAM_TIMEOUT", "30s")); err != nil || cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("UPSTREAM_TIMEOUTの値が不正です: %q", getenv("UPSTREAM_TIMEOUT"))
	}

	for _, def := range serviceDefinitions {
		cfg.Services = append(cfg.Services, ServiceConfig{
			Name:   def.name,
			Prefix: def.prefix,
			URL:    strings.TrimSpace(getenv(def.env)),
		})
	}
	return cfg, nil
}

// windowUnits は "1 minute" 形式で使える単位。
var windowUnits = map[string]time.Duration{
	"ms": time.Millisecond, "millisecond": time.Millisecond, "milliseconds": time.Millisecond,
	"s": time.Second, "sec": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
}

// ParseWindow はレートリミットのウィンドウ期間を解釈する。
// "30s" のようなGoの期間表記、"60000" のようなミリ秒、"1 minute" のような表記を受け付ける。
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("期間は正の値である必要があります: %q", s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("期間は正の値である必要があります: %q", s)
		}
		return d, nil
	}

	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("期間の形式が不正です: %q", s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("期間の数値が不正です: %q", s)
	}
	unit, ok := windowUnits[fields[1]]
	if !ok {
		return 0, fmt.Errorf("期間の単位が不正です: %q", s)
	}
	return time.Duration(n) * unit, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(getenv func(string) string, key, defaultValue string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return defaultValue
}
