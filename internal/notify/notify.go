// Package notify は申請結果の通知手段を提供する。
package notify

import (
	"time"

	"pki-ca-service/internal/domain"
)

// イベント種別。
const (
	EventIssued              = "certificate.issued"
	EventApplicationRejected = "application.rejected"
	EventRevoked             = "certificate.revoked"
	EventRevocationRejected  = "revocation.rejected"
)

// Message は通知1件分の内容。
type Message struct {
	Event        string    `json:"event"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ValidTo      string    `json:"valid_to,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func issuedMessage(to domain.Recipient, cert *domain.Certificate) Message {
	return Message{
		Event:        EventIssued,
		Username:     to.Username,
		Email:        to.Email,
		SerialNumber: cert.SerialNumber,
		RequestID:    cert.ApplicationID,
		ValidTo:      cert.ValidTo.UTC().Format(time.RFC3339),
		OccurredAt:   cert.IssueTime,
	}
}

func applicationRejectedMessage(to domain.Recipient, req *domain.ApplicationRequest) Message {
	m := Message{
		Event:     EventApplicationRejected,
		Username:  to.Username,
		Email:     to.Email,
		RequestID: req.ID,
		Reason:    req.RejectReason,
	}
	if req.RejectTime != nil {
		m.OccurredAt = *req.RejectTime
	}
	return m
}

func revokedMessage(to domain.Recipient, rec *domain.RevocationRecord) Message {
	return Message{
		Event:        EventRevoked,
		Username:     to.Username,
		Email:        to.Email,
		SerialNumber: rec.SerialNumber,
		Reason:       rec.Reason,
		OccurredAt:   rec.RevokeTime,
	}
}

func revocationRejectedMessage(to domain.Recipient, req *domain.RevocationRequest) Message {
	m := Message{
		Event:        EventRevocationRejected,
		Username:     to.Username,
		Email:        to.Email,
		SerialNumber: req.SerialNumber,
		RequestID:    req.ID,
		Reason:       req.RejectReason,
	}
	if req.RejectTime != nil {
		m.OccurredAt = *req.RejectTime
	}
	return m
}
