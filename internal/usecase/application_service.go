package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki"
)

// ApplicationService は証明書発行申請の提出・承認・却下を提供する。
type ApplicationService struct {
	nonces   NonceStore
	apps     ApplicationRepository
	certs    CertificateRepository
	users    UserRepository
	tx       Transactor
	issuer   CertificateIssuer
	serials  SerialSource
	notifier Notifier
	now      func() time.Time
}

// NewApplicationService は新しいApplicationServiceを生成する。
func NewApplicationService(
	nonces NonceStore,
	apps ApplicationRepository,
	certs CertificateRepository,
	users UserRepository,
	tx Transactor,
	issuer CertificateIssuer,
	serials SerialSource,
	notifier Notifier,
) *ApplicationService {
	return &ApplicationService{
		nonces:   nonces,
		apps:     apps,
		certs:    certs,
		users:    users,
		tx:       tx,
		issuer:   issuer,
		serials:  serials,
		notifier: notifier,
		now:      time.Now,
	}
}

// IssueCSRChallenge は申請者にCSR鍵所持証明用のチャレンジを発行する。以前のチャレンジは無効になる。
func (s *ApplicationService) IssueCSRChallenge(ctx context.Context, requestor string) (*domain.Nonce, error) {
	nonce, err := s.nonces.Issue(ctx, requestor, domain.NoncePurposeCSRBinding)
	if err != nil {
		return nil, fmt.Errorf("issuing csr challenge: %w", err)
	}
	return nonce, nil
}

// Submit はCSRとチャレンジへの署名を検証し、PENDING の申請を記録する。
// 検証に成功した場合のみチャレンジを消費する。
func (s *ApplicationService) Submit(ctx context.Context, requestor, csrPEM, signatureB64 string) (*domain.ApplicationRequest, error) {
	lookup, err := s.nonces.Peek(ctx, requestor, domain.NoncePurposeCSRBinding)
	if err != nil {
		return nil, fmt.Errorf("reading csr challenge: %w", err)
	}
	if err := lookup.Err(); err != nil {
		return nil, err
	}
	challenge := lookup.Nonce.Value

	info, err := pki.ParseCSR(csrPEM)
	if err != nil {
		return nil, err
	}
	if err := pki.VerifyBinding(info.PublicKey, challenge, signatureB64); err != nil {
		slog.InfoContext(ctx, "csr binding verification failed",
			"operation", "submit_application",
			"requestor", requestor,
			"challenge_sha256", pki.SHA256Hex(challenge),
			"error", err,
		)
		return nil, err
	}

	consumed, err := s.nonces.Consume(ctx, requestor, domain.NoncePurposeCSRBinding, challenge)
	if err != nil {
		return nil, fmt.Errorf("consuming csr challenge: %w", err)
	}
	if !consumed {
		return nil, domain.ErrChallengeNotFound
	}

	req := &domain.ApplicationRequest{
		Requestor:   requestor,
		CSRPEM:      csrPEM,
		Status:      domain.RequestStatusPending,
		RequestTime: s.now(),
	}
	if err := s.apps.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("creating application request: %w", err)
	}
	return req, nil
}

// Approve は PENDING の申請を承認し、CSRのサブジェクトと公開鍵で証明書を発行する。
// 状態遷移・発行・保存は1つのトランザクションで行い、いずれかが失敗した場合は申請は PENDING のまま残る。
// 同じ申請への同時承認は1つだけが成功し、他は domain.ErrInvalidStateTransition となる。
func (s *ApplicationService) Approve(ctx context.Context, id, approver string) (cert *domain.Certificate, err error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.Approve")
	span.SetAttributes(attribute.String("application.id", id))
	defer func() { endSpan(span, err) }()

	req, err := s.findPending(ctx, id, domain.RequestStatusApproved)
	if err != nil {
		return nil, err
	}
	info, err := pki.ParseCSR(req.CSRPEM)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		now := s.now()
		if err := s.apps.Transition(ctx, req.ID, domain.Transition{
			To: domain.RequestStatusApproved,
			At: now,
			By: approver,
		}); err != nil {
			return err
		}

		serial := s.serials.Next()
		issued, err := s.issuer.Issue(info.PublicKey, info.Subject, serial)
		if err != nil {
			return err
		}

		cert = &domain.Certificate{
			Owner:          req.Requestor,
			SerialNumber:   serial,
			CertificatePEM: issued.PEM,
			ValidFrom:      issued.NotBefore,
			ValidTo:        issued.NotAfter,
			IssueTime:      now,
			SourceCSR:      req.CSRPEM,
			ApplicationID:  req.ID,
		}
		return s.certs.Create(ctx, cert)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to approve application",
			"operation", "approve_application",
			"id", id,
			"approver", approver,
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate.serial", cert.SerialNumber))

	to := resolveRecipient(ctx, s.users, req.Requestor)
	logNotifyError(ctx, "issued", s.notifier.NotifyIssued(ctx, to, cert))
	return cert, nil
}

// Reject は PENDING の申請を却下する。理由が空の場合は既定の文言を記録する。
func (s *ApplicationService) Reject(ctx context.Context, id, approver, reason string) (*domain.ApplicationRequest, error) {
	reason, err := rejectReason(reason)
	if err != nil {
		return nil, err
	}

	req, err := s.findPending(ctx, id, domain.RequestStatusRejected)
	if err != nil {
		return nil, err
	}

	t := domain.Transition{
		To:     domain.RequestStatusRejected,
		At:     s.now(),
		By:     approver,
		Reason: reason,
	}
	if err := s.apps.Transition(ctx, req.ID, t); err != nil {
		return nil, err
	}
	req.Status = t.To
	req.RejectTime = &t.At
	req.RejectBy = t.By
	req.RejectReason = t.Reason

	to := resolveRecipient(ctx, s.users, req.Requestor)
	logNotifyError(ctx, "application_rejected", s.notifier.NotifyApplicationRejected(ctx, to, req))
	return req, nil
}

// Get はIDで申請を取得する。
func (s *ApplicationService) Get(ctx context.Context, id string) (*domain.ApplicationRequest, error) {
	req, err := s.apps.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding application request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

// ListByStatus は指定状態の申請一覧を取得する。
func (s *ApplicationService) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.ApplicationRequest, error) {
	reqs, err := s.apps.FindByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("finding application requests: %w", err)
	}
	return reqs, nil
}

// ListByRequestor は申請者自身の申請一覧を取得する。
func (s *ApplicationService) ListByRequestor(ctx context.Context, requestor string) ([]*domain.ApplicationRequest, error) {
	reqs, err := s.apps.FindByRequestor(ctx, requestor)
	if err != nil {
		return nil, fmt.Errorf("finding application requests: %w", err)
	}
	return reqs, nil
}

// findPending は申請を取得し、to への遷移が可能かを確認する。
func (s *ApplicationService) findPending(ctx context.Context, id string, to domain.RequestStatus) (*domain.ApplicationRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: application %s is %s", domain.ErrInvalidStateTransition, id, req.Status)
	}
	return req, nil
}
