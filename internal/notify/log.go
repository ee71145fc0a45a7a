package notify

import (
	"context"
	"log/slog"

	"pki-ca-service/internal/domain"
)

// LogNotifier は通知を構造化ログとして出力する。配送先が設定されていない場合の既定実装。
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier は新しいLogNotifierを生成する。logger が nil の場合は slog.Default を使う。
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) emit(ctx context.Context, m Message) error {
	n.logger.InfoContext(ctx, "notification",
		"event", m.Event,
		"username", m.Username,
		"email", m.Email,
		"serial_number", m.SerialNumber,
		"request_id", m.RequestID,
		"reason", m.Reason,
	)
	return nil
}

// NotifyIssued は証明書発行を通知する。
func (n *LogNotifier) NotifyIssued(ctx context.Context, to domain.Recipient, cert *domain.Certificate) error {
	return n.emit(ctx, issuedMessage(to, cert))
}

// NotifyApplicationRejected は発行申請の却下を通知する。
func (n *LogNotifier) NotifyApplicationRejected(ctx context.Context, to domain.Recipient, req *domain.ApplicationRequest) error {
	return n.emit(ctx, applicationRejectedMessage(to, req))
}

// NotifyRevoked は証明書の失効を通知する。
func (n *LogNotifier) NotifyRevoked(ctx context.Context, to domain.Recipient, rec *domain.RevocationRecord) error {
	return n.emit(ctx, revokedMessage(to, rec))
}

// NotifyRevocationRejected は失効申請の却下を通知する。
func (n *LogNotifier) NotifyRevocationRejected(ctx context.Context, to domain.Recipient, req *domain.RevocationRequest) error {
	return n.emit(ctx, revocationRejectedMessage(to, req))
}
