package handler

import (
	"time"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/usecase"
)

// ChallengeResponse はチャレンジ発行のレスポンス形式。
type ChallengeResponse struct {
	Subject   string `json:"subject"`
	Purpose   string `json:"purpose"`
	Challenge string `json:"challenge"`
	ExpiresAt string `json:"expires_at"`
}

// UserResponse は利用者のレスポンス形式。
type UserResponse struct {
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	RegisteredAt string `json:"registered_at,omitempty"`
}

// ApplicationResponse は発行申請のレスポンス形式。
type ApplicationResponse struct {
	ID           string `json:"id"`
	Requestor    string `json:"requestor"`
	Status       string `json:"status"`
	StatusLabel  string `json:"status_label"`
	RequestTime  string `json:"request_time"`
	ApproveTime  string `json:"approve_time,omitempty"`
	ApprovedBy   string `json:"approved_by,omitempty"`
	RejectTime   string `json:"reject_time,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	RejectBy     string `json:"reject_by,omitempty"`
}

// RevocationResponse は失効申請のレスポンス形式。
type RevocationResponse struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serial_number"`
	Requestor    string `json:"requestor"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
	StatusLabel  string `json:"status_label"`
	RequestTime  string `json:"request_time"`
	ApproveTime  string `json:"approve_time,omitempty"`
	ApprovedBy   string `json:"approved_by,omitempty"`
	RejectTime   string `json:"reject_time,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	RejectBy     string `json:"reject_by,omitempty"`
}

// RevocationRecordResponse は失効記録のレスポンス形式。
type RevocationRecordResponse struct {
	SerialNumber string `json:"serial_number"`
	RevokeTime   string `json:"revoke_time"`
	Reason       string `json:"reason"`
}

// CertificateResponse は証明書と評価時点の状態のレスポンス形式。
type CertificateResponse struct {
	SerialNumber   string `json:"serial_number"`
	Owner          string `json:"owner"`
	Status         string `json:"status"`
	StatusLabel    string `json:"status_label"`
	ValidFrom      string `json:"valid_from"`
	ValidTo        string `json:"valid_to"`
	IssueTime      string `json:"issue_time"`
	EvaluatedAt    string `json:"evaluated_at,omitempty"`
	CertificatePEM string `json:"certificate_pem,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func toChallengeResponse(n *domain.Nonce) ChallengeResponse {
	return ChallengeResponse{
		Subject:   n.Subject,
		Purpose:   string(n.Purpose),
		Challenge: n.Value,
		ExpiresAt: formatTime(n.ExpiresAt),
	}
}

func toApplicationResponse(l labeler, req *domain.ApplicationRequest) ApplicationResponse {
	return ApplicationResponse{
		ID:           req.ID,
		Requestor:    req.Requestor,
		Status:       string(req.Status),
		StatusLabel:  l.Label(string(req.Status)),
		RequestTime:  formatTime(req.RequestTime),
		ApproveTime:  formatTimePtr(req.ApproveTime),
		ApprovedBy:   req.ApprovedBy,
		RejectTime:   formatTimePtr(req.RejectTime),
		RejectReason: req.RejectReason,
		RejectBy:     req.RejectBy,
	}
}

func toRevocationResponse(l labeler, req *domain.RevocationRequest) RevocationResponse {
	return RevocationResponse{
		ID:           req.ID,
		SerialNumber: req.SerialNumber,
		Requestor:    req.Requestor,
		Reason:       req.Reason,
		Status:       string(req.Status),
		StatusLabel:  l.Label(string(req.Status)),
		RequestTime:  formatTime(req.RequestTime),
		ApproveTime:  formatTimePtr(req.ApproveTime),
		ApprovedBy:   req.ApprovedBy,
		RejectTime:   formatTimePtr(req.RejectTime),
		RejectReason: req.RejectReason,
		RejectBy:     req.RejectBy,
	}
}

func toRecordResponse(rec *domain.RevocationRecord) RevocationRecordResponse {
	return RevocationRecordResponse{
		SerialNumber: rec.SerialNumber,
		RevokeTime:   formatTime(rec.RevokeTime),
		Reason:       rec.Reason,
	}
}

func toCertificateResponse(l labeler, view *usecase.CertificateView, withPEM bool) CertificateResponse {
	cert := view.Certificate
	resp := CertificateResponse{
		SerialNumber: cert.SerialNumber,
		Owner:        cert.Owner,
		Status:       string(view.Status),
		StatusLabel:  l.Label(string(view.Status)),
		ValidFrom:    formatTime(cert.ValidFrom),
		ValidTo:      formatTime(cert.ValidTo),
		IssueTime:    formatTime(cert.IssueTime),
		EvaluatedAt:  formatTime(view.EvaluatedAt),
	}
	if withPEM {
		resp.CertificatePEM = cert.CertificatePEM
	}
	return resp
}
