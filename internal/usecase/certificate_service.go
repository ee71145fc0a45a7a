package usecase

import (
	"context"
	"fmt"
	"time"

	"pki-ca-service/internal/domain"
)

// CertificateView は証明書と評価時点の状態の組。
type CertificateView struct {
	Certificate *domain.Certificate
	Status      domain.CertificateStatus
	EvaluatedAt time.Time
}

// CAProvider はCA証明書を提供する。
type CAProvider interface {
	CertificatePEM() string
}

// CertificateService は証明書の状態評価と参照を提供する。状態は問い合わせごとに算出し、保持しない。
type CertificateService struct {
	certs       CertificateRepository
	revocations RevocationRepository
	ca          CAProvider
	now         func() time.Time
}

// NewCertificateService は新しいCertificateServiceを生成する。
func NewCertificateService(certs CertificateRepository, revocations RevocationRepository, ca CAProvider) *CertificateService {
	return &CertificateService{
		certs:       certs,
		revocations: revocations,
		ca:          ca,
		now:         time.Now,
	}
}

// Evaluate は現在時刻と失効記録から証明書の状態を算出する。
func (s *CertificateService) Evaluate(ctx context.Context, cert *domain.Certificate) (*CertificateView, error) {
	revoked, err := s.revocations.IsRevoked(ctx, cert.ID)
	if err != nil {
		return nil, fmt.Errorf("checking revocation: %w", err)
	}
	now := s.now()
	return &CertificateView{
		Certificate: cert,
		Status:      domain.EvaluateStatus(cert, revoked, now),
		EvaluatedAt: now,
	}, nil
}

// ListMine は所有者の証明書を状態付きで取得する。
func (s *CertificateService) ListMine(ctx context.Context, owner string) ([]*CertificateView, error) {
	certs, err := s.certs.FindByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("finding certificates: %w", err)
	}

	views := make([]*CertificateView, 0, len(certs))
	for _, cert := range certs {
		view, err := s.Evaluate(ctx, cert)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// StatusBySerial はシリアル番号で証明書の状態を取得する。
func (s *CertificateService) StatusBySerial(ctx context.Context, serial string) (*CertificateView, error) {
	cert, err := s.findBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, cert)
}

// Verify は証明書が現在有効であることを確認する。有効でない場合は状態付きで domain.ErrCertificateNotValid を返す。
func (s *CertificateService) Verify(ctx context.Context, serial string) (*CertificateView, error) {
	view, err := s.StatusBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if view.Status != domain.CertificateStatusValid {
		return view, fmt.Errorf("%w: %s is %s", domain.ErrCertificateNotValid, serial, view.Status)
	}
	return view, nil
}

// Download は所有者に証明書を返す。
func (s *CertificateService) Download(ctx context.Context, requester, serial string) (*domain.Certificate, error) {
	cert, err := s.findBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if cert.Owner != requester {
		return nil, domain.ErrNotCertificateOwner
	}
	return cert, nil
}

// RevocationList は全失効記録を返す。
func (s *CertificateService) RevocationList(ctx context.Context) ([]*domain.RevocationRecord, error) {
	records, err := s.revocations.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing revocation records: %w", err)
	}
	return records, nil
}

// CACertificatePEM はCA証明書をPEMで返す。
func (s *CertificateService) CACertificatePEM() string {
	return s.ca.CertificatePEM()
}

func (s *CertificateService) findBySerial(ctx context.Context, serial string) (*domain.Certificate, error) {
	cert, err := s.certs.FindBySerial(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCertificateNotFound, serial)
	}
	return cert, nil
}
