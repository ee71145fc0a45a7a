package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pki-ca-service/internal/domain"
)

var tracer = otel.Tracer("pki-ca-service/internal/usecase")

// maxReasonLength は理由の最大文字数。reason 列の VARCHAR(512) に合わせる。
const maxReasonLength = 512

// endSpan はエラーがあればスパンに記録して終了する。
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// validateReason は理由の長さを検証する。
func validateReason(reason string) error {
	if n := utf8.RuneCountInString(reason); n > maxReasonLength {
		return fmt.Errorf("%w: length %d exceeds %d", domain.ErrInvalidReason, n, maxReasonLength)
	}
	return nil
}

// rejectReason は空の却下理由を既定の文言に置き換える。
func rejectReason(reason string) (string, error) {
	r := strings.TrimSpace(reason)
	if r == "" {
		return domain.DefaultRejectReason, nil
	}
	if err := validateReason(r); err != nil {
		return "", err
	}
	return r, nil
}

// resolveRecipient は通知先を利用者情報から解決する。未登録の場合はメールアドレスなしで返す。
func resolveRecipient(ctx context.Context, users UserRepository, username string) domain.Recipient {
	to := domain.Recipient{Username: username}
	if users == nil {
		return to
	}
	user, err := users.FindByUsername(ctx, username)
	if err != nil {
		slog.WarnContext(ctx, "failed to resolve notification recipient",
			"operation", "resolve_recipient",
			"username", username,
			"error", err,
		)
		return to
	}
	if user != nil {
		to.Email = user.Email
	}
	return to
}

// logNotifyError は通知失敗を記録する。状態遷移は確定済みのため呼び出し元には返さない。
func logNotifyError(ctx context.Context, event string, err error) {
	if err == nil {
		return
	}
	slog.ErrorContext(ctx, "failed to send notification",
		"operation", "notify",
		"event", event,
		"error", err,
	)
}
