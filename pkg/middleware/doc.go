// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの検証と識別ヘッダーの伝播、プロセス全体のレートリミット、
// アクセスログ、リクエストID、パニックリカバリなど、
// API Gatewayと各サービスで共通して使用するミドルウェアを含む。
package middleware
