// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto"
	"crypto/x509/pkix"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki"
)

// NonceStore はサブジェクト・用途ごとの一回限りのチャレンジを保管する。
// Consume は value と一致する有効なチャレンジを原子的に削除し、成功した呼び出し元だけが true を得る。
type NonceStore interface {
	Issue(ctx context.Context, subject string, purpose domain.NoncePurpose) (*domain.Nonce, error)
	Peek(ctx context.Context, subject string, purpose domain.NoncePurpose) (domain.NonceLookup, error)
	Consume(ctx context.Context, subject string, purpose domain.NoncePurpose, value string) (bool, error)
}

// UserRepository は利用者のデータアクセスのインターフェース。
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

// ApplicationRepository は発行申請のデータアクセスのインターフェース。
type ApplicationRepository interface {
	Create(ctx context.Context, req *domain.ApplicationRequest) error
	FindByID(ctx context.Context, id string) (*domain.ApplicationRequest, error)
	FindByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.ApplicationRequest, error)
	FindByRequestor(ctx context.Context, requestor string) ([]*domain.ApplicationRequest, error)
	Transition(ctx context.Context, id string, t domain.Transition) error
}

// CertificateRepository は発行済み証明書のデータアクセスのインターフェース。
type CertificateRepository interface {
	Create(ctx context.Context, cert *domain.Certificate) error
	FindByID(ctx context.Context, id string) (*domain.Certificate, error)
	FindBySerial(ctx context.Context, serial string) (*domain.Certificate, error)
	FindByOwner(ctx context.Context, owner string) ([]*domain.Certificate, error)
	LockForUpdate(ctx context.Context, id string) error
}

// RevocationRepository は失効申請と失効記録のデータアクセスのインターフェース。
type RevocationRepository interface {
	CreateRequest(ctx context.Context, req *domain.RevocationRequest) error
	FindRequestByID(ctx context.Context, id string) (*domain.RevocationRequest, error)
	FindRequestsByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.RevocationRequest, error)
	HasPendingRequest(ctx context.Context, certificateID string) (bool, error)
	TransitionRequest(ctx context.Context, id string, t domain.Transition) error
	CreateRecord(ctx context.Context, rec *domain.RevocationRecord) error
	IsRevoked(ctx context.Context, certificateID string) (bool, error)
	ListRecords(ctx context.Context) ([]*domain.RevocationRecord, error)
}

// Transactor は関数を単一のトランザクション内で実行する。
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CertificateIssuer はCA鍵で証明書を発行する。
type CertificateIssuer interface {
	Issue(subjectPublicKey crypto.PublicKey, subject pkix.Name, serialNumber string) (*pki.IssuedCertificate, error)
}

// SerialSource は発行用のシリアル番号を払い出す。
type SerialSource interface {
	Next() string
}

// Notifier は申請結果を利用者へ通知する。配送手段は実装に委ねる。
type Notifier interface {
	NotifyIssued(ctx context.Context, to domain.Recipient, cert *domain.Certificate) error
	NotifyApplicationRejected(ctx context.Context, to domain.Recipient, req *domain.ApplicationRequest) error
	NotifyRevoked(ctx context.Context, to domain.Recipient, rec *domain.RevocationRecord) error
	NotifyRevocationRejected(ctx context.Context, to domain.Recipient, req *domain.RevocationRequest) error
}
