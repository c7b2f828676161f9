// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// API Gatewayが各内部サービスの /health を確認する際に使用する。
package httpclient
