package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pki-ca-service/internal/domain"
)

const (
	webhookTimeout    = 10 * time.Second
	webhookRetryDelay = time.Second
	// webhookDeliveryTimeout は再送を含めた1件あたりの配送期限。
	webhookDeliveryTimeout = 15 * time.Second
	webhookUserAgent       = "pki-ca-service-notifier/1.0"
)

// WebhookNotifier は通知をJSONで外部エンドポイントへPOSTする。5xx の場合は1回だけ再送する。
// 配送はバックグラウンドで行い、Notify* は呼び出し元を待たせない。
type WebhookNotifier struct {
	url             string
	authHeader      string // "Header: Value" 形式
	client          *http.Client
	retryDelay      time.Duration
	deliveryTimeout time.Duration
	inflight        sync.WaitGroup
}

// NewWebhookNotifier は新しいWebhookNotifierを生成する。
func NewWebhookNotifier(url, authHeader string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	return &WebhookNotifier{
		url:        url,
		authHeader: authHeader,
		client: &http.Client{
			Timeout:   webhookTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retryDelay:      webhookRetryDelay,
		deliveryTimeout: webhookDeliveryTimeout,
	}, nil
}

// NotifyIssued は証明書発行を通知する。
func (n *WebhookNotifier) NotifyIssued(ctx context.Context, to domain.Recipient, cert *domain.Certificate) error {
	return n.dispatch(ctx, issuedMessage(to, cert))
}

// NotifyApplicationRejected は発行申請の却下を通知する。
func (n *WebhookNotifier) NotifyApplicationRejected(ctx context.Context, to domain.Recipient, req *domain.ApplicationRequest) error {
	return n.dispatch(ctx, applicationRejectedMessage(to, req))
}

// NotifyRevoked は証明書の失効を通知する。
func (n *WebhookNotifier) NotifyRevoked(ctx context.Context, to domain.Recipient, rec *domain.RevocationRecord) error {
	return n.dispatch(ctx, revokedMessage(to, rec))
}

// NotifyRevocationRejected は失効申請の却下を通知する。
func (n *WebhookNotifier) NotifyRevocationRejected(ctx context.Context, to domain.Recipient, req *domain.RevocationRequest) error {
	return n.dispatch(ctx, revocationRejectedMessage(to, req))
}

// dispatch は呼び出し元のキャンセルから切り離した期限付きコンテキストで配送を開始する。
func (n *WebhookNotifier) dispatch(ctx context.Context, m Message) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.deliveryTimeout)
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		defer cancel()
		if err := n.send(ctx, m); err != nil {
			slog.ErrorContext(ctx, "failed to deliver notification",
				"operation", "notify_webhook",
				"event", m.Event,
				"username", m.Username,
				"error", err,
			)
		}
	}()
	return nil
}

// Wait は配送中の通知が終わるか ctx が終了するまで待つ。
func (n *WebhookNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *WebhookNotifier) send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	deliveryID := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", webhookUserAgent)
		req.Header.Set("X-Delivery-ID", deliveryID)
		if name, value, ok := strings.Cut(n.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := n.client.Do(req)
		if err != nil {
			slog.WarnContext(ctx, "webhook request failed",
				"operation", "notify_webhook",
				"event", m.Event,
				"attempt", attempt+1,
				"error", err,
			)
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("webhook server error: status %d", resp.StatusCode)
			continue
		default:
			return fmt.Errorf("webhook rejected notification: status %d", resp.StatusCode)
		}
	}
	return lastErr
}
