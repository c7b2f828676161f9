// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// 全リクエストにレートリミットを適用したうえで、公開パス以外はBearerトークンを検証し、
// 検証済みのユーザーIDとロールをヘッダーに載せて内部サービスに転送する。
// /health/ready では全ての内部サービスのヘルスチェックを並行に実行して集約する。
package gateway
