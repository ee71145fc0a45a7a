// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"crypto"
	"crypto/x509/pkix"
	"time"
)

// RequestStatus は申請（発行・失効）の状態を表す。
type RequestStatus string

const (
	// RequestStatusPending は承認待ち。
	RequestStatusPending RequestStatus = "PENDING"
	// RequestStatusApproved は承認済み（終端）。
	RequestStatusApproved RequestStatus = "APPROVED"
	// RequestStatusRejected は却下済み（終端）。
	RequestStatusRejected RequestStatus = "REJECTED"
)

// Valid は既知の状態かどうかを返す。
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// Terminal は終端状態かどうかを返す。
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// CanTransitionTo は from から to への遷移が許可されるかを返す。
// 許可されるのは PENDING→APPROVED と PENDING→REJECTED のみ。
func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	return s == RequestStatusPending && to.Terminal()
}

// CertificateStatus は評価時点における証明書の状態を表す。
type CertificateStatus string

const (
	CertificateStatusNotYetValid CertificateStatus = "NOT_YET_VALID"
	CertificateStatusValid       CertificateStatus = "VALID"
	CertificateStatusExpired     CertificateStatus = "EXPIRED"
	CertificateStatusRevoked     CertificateStatus = "REVOKED"
)

// DefaultRejectReason は却下理由が空の場合に記録される文言。
const DefaultRejectReason = "no reason provided"

// CSRInfo はCSRから取り出したサブジェクトと公開鍵。永続化されない。
type CSRInfo struct {
	Subject   pkix.Name
	PublicKey crypto.PublicKey
}

// ApplicationRequest は証明書発行申請を表す。
type ApplicationRequest struct {
	ID           string
	Requestor    string
	CSRPEM       string
	Status       RequestStatus
	RequestTime  time.Time
	ApproveTime  *time.Time
	ApprovedBy   string
	RejectTime   *time.Time
	RejectReason string
	RejectBy     string
}

// Certificate は発行済み証明書を表す。発行後は不変。
type Certificate struct {
	ID             string
	Owner          string
	SerialNumber   string
	CertificatePEM string
	ValidFrom      time.Time
	ValidTo        time.Time
	IssueTime      time.Time
	SourceCSR      string
	ApplicationID  string
}

// RevocationRequest は証明書失効申請を表す。
type RevocationRequest struct {
	ID            string
	CertificateID string
	SerialNumber  string
	Requestor     string
	Reason        string
	Status        RequestStatus
	RequestTime   time.Time
	ApproveTime   *time.Time
	ApprovedBy    string
	RejectTime    *time.Time
	RejectReason  string
	RejectBy      string
}

// RevocationRecord は失効の記録。存在することが失効の唯一の根拠となる。
type RevocationRecord struct {
	ID            string
	CertificateID string
	SerialNumber  string
	RevokeTime    time.Time
	Reason        string
}

// Transition は申請状態の遷移内容を表す。
type Transition struct {
	To     RequestStatus
	At     time.Time
	By     string
	Reason string // 却下時のみ
}

// EvaluateStatus は失効の有無と時刻から証明書の状態を算出する。
// 失効は常に時刻による判定より優先される。
func EvaluateStatus(cert *Certificate, revoked bool, now time.Time) CertificateStatus {
	switch {
	case revoked:
		return CertificateStatusRevoked
	case now.Before(cert.ValidFrom):
		return CertificateStatusNotYetValid
	case now.After(cert.ValidTo):
		return CertificateStatusExpired
	default:
		return CertificateStatusValid
	}
}
