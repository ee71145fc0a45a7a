// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// WriteAuditLog は状態を変更する操作ごとに監査ログを1行出力する。
func WriteAuditLog(ctx context.Context, operation, actor, target, result string) {
	slog.InfoContext(ctx, "audit",
		"operation", operation,
		"actor", actor,
		"target", target,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
