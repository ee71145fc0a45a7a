package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pki-ca-service/internal/domain"
)

// RevocationService は証明書失効申請の提出・承認・却下を提供する。
type RevocationService struct {
	certs       CertificateRepository
	revocations RevocationRepository
	users       UserRepository
	tx          Transactor
	notifier    Notifier
	now         func() time.Time
}

// NewRevocationService は新しいRevocationServiceを生成する。
func NewRevocationService(
	certs CertificateRepository,
	revocations RevocationRepository,
	users UserRepository,
	tx Transactor,
	notifier Notifier,
) *RevocationService {
	return &RevocationService{
		certs:       certs,
		revocations: revocations,
		users:       users,
		tx:          tx,
		notifier:    notifier,
		now:         time.Now,
	}
}

// Submit は所有する有効な証明書に対する失効申請を記録する。
// 所有者でない場合、証明書が有効でない場合、承認待ちの申請が既にある場合は domain.ErrInvalidStateTransition を返す。
func (s *RevocationService) Submit(ctx context.Context, requestor, serial, reason string) (*domain.RevocationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", domain.ErrInvalidReason)
	}
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	cert, err := s.certs.FindBySerial(ctx, serial)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCertificateNotFound, serial)
	}
	if cert.Owner != requestor {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidStateTransition, domain.ErrNotCertificateOwner)
	}

	req := &domain.RevocationRequest{
		CertificateID: cert.ID,
		SerialNumber:  cert.SerialNumber,
		Requestor:     requestor,
		Reason:        reason,
		Status:        domain.RequestStatusPending,
	}
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.certs.LockForUpdate(ctx, cert.ID); err != nil {
			return fmt.Errorf("locking certificate: %w", err)
		}

		revoked, err := s.revocations.IsRevoked(ctx, cert.ID)
		if err != nil {
			return fmt.Errorf("checking revocation: %w", err)
		}
		now := s.now()
		if status := domain.EvaluateStatus(cert, revoked, now); status != domain.CertificateStatusValid {
			return fmt.Errorf("%w: %w: %s is %s", domain.ErrInvalidStateTransition, domain.ErrCertificateNotValid, serial, status)
		}

		pending, err := s.revocations.HasPendingRequest(ctx, cert.ID)
		if err != nil {
			return fmt.Errorf("checking pending revocation: %w", err)
		}
		if pending {
			return fmt.Errorf("%w: revocation of %s is already pending", domain.ErrInvalidStateTransition, serial)
		}

		req.RequestTime = now
		if err := s.revocations.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("creating revocation request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve は PENDING の失効申請を承認し、失効記録を追加する。
// 失効記録の追加が証明書を失効させる唯一の操作であり、状態遷移と同じトランザクションで行う。
func (s *RevocationService) Approve(ctx context.Context, id, approver string) (rec *domain.RevocationRecord, err error) {
	ctx, span := tracer.Start(ctx, "RevocationService.Approve")
	span.SetAttributes(attribute.String("revocation.id", id))
	defer func() { endSpan(span, err) }()

	req, err := s.findPending(ctx, id, domain.RequestStatusApproved)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		now := s.now()
		if err := s.revocations.TransitionRequest(ctx, req.ID, domain.Transition{
			To: domain.RequestStatusApproved,
			At: now,
			By: approver,
		}); err != nil {
			return err
		}

		rec = &domain.RevocationRecord{
			CertificateID: req.CertificateID,
			SerialNumber:  req.SerialNumber,
			RevokeTime:    now,
			Reason:        req.Reason,
		}
		return s.revocations.CreateRecord(ctx, rec)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to approve revocation",
			"operation", "approve_revocation",
			"id", id,
			"approver", approver,
			"error", err,
		)
		return nil, err
	}

	to := resolveRecipient(ctx, s.users, req.Requestor)
	logNotifyError(ctx, "revoked", s.notifier.NotifyRevoked(ctx, to, rec))
	return rec, nil
}

// Reject は PENDING の失効申請を却下する。理由が空の場合は既定の文言を記録する。
func (s *RevocationService) Reject(ctx context.Context, id, approver, reason string) (*domain.RevocationRequest, error) {
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
	if err := s.revocations.TransitionRequest(ctx, req.ID, t); err != nil {
		return nil, err
	}
	req.Status = t.To
	req.RejectTime = &t.At
	req.RejectBy = t.By
	req.RejectReason = t.Reason

	to := resolveRecipient(ctx, s.users, req.Requestor)
	logNotifyError(ctx, "revocation_rejected", s.notifier.NotifyRevocationRejected(ctx, to, req))
	return req, nil
}

// Get はIDで失効申請を取得する。
func (s *RevocationService) Get(ctx context.Context, id string) (*domain.RevocationRequest, error) {
	req, err := s.revocations.FindRequestByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding revocation request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

// ListByStatus は指定状態の失効申請一覧を取得する。
func (s *RevocationService) ListByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.RevocationRequest, error) {
	reqs, err := s.revocations.FindRequestsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("finding revocation requests: %w", err)
	}
	return reqs, nil
}

func (s *RevocationService) findPending(ctx context.Context, id string, to domain.RequestStatus) (*domain.RevocationRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: revocation request %s is %s", domain.ErrInvalidStateTransition, id, req.Status)
	}
	return req, nil
}
