// Package service は各内部サービスで共通のHTTPサーバーを提供する。
//
// 内部サービスはGatewayからのみ呼ばれるため認証は行わず、
// Gatewayが付与した X-User-Id / X-User-Role ヘッダーをそのまま信頼する。
package service
