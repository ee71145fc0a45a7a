package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pki-ca-service/internal/domain"
)

// RevocationRequestModel はrevocation_requestsテーブルのモデル。
type RevocationRequestModel struct {
	ID            string     `gorm:"type:char(36);primaryKey"`
	CertificateID string     `gorm:"type:char(36);not null;index:idx_revreq_certificate"`
	SerialNumber  string     `gorm:"type:varchar(64);not null"`
	Requestor     string     `gorm:"type:varchar(64);not null"`
	Reason        string     `gorm:"type:varchar(512);not null"`
	Status        string     `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_revreq_status"`
	RequestTime   time.Time  `gorm:"not null;precision:6"`
	ApproveTime   *time.Time `gorm:"precision:6"`
	ApprovedBy    string     `gorm:"type:varchar(64);not null;default:''"`
	RejectTime    *time.Time `gorm:"precision:6"`
	RejectReason  string     `gorm:"type:varchar(512);not null;default:''"`
	RejectBy      string     `gorm:"type:varchar(64);not null;default:''"`
}

// TableName はテーブル名を返す。
func (RevocationRequestModel) TableName() string {
	return "revocation_requests"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *RevocationRequestModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *RevocationRequestModel) toDomain() *domain.RevocationRequest {
	return &domain.RevocationRequest{
		ID:            m.ID,
		CertificateID: m.CertificateID,
		SerialNumber:  m.SerialNumber,
		Requestor:     m.Requestor,
		Reason:        m.Reason,
		Status:        domain.RequestStatus(m.Status),
		RequestTime:   m.RequestTime,
		ApproveTime:   m.ApproveTime,
		ApprovedBy:    m.ApprovedBy,
		RejectTime:    m.RejectTime,
		RejectReason:  m.RejectReason,
		RejectBy:      m.RejectBy,
	}
}

// RevocationRecordModel はrevocation_recordsテーブルのモデル。証明書ごとに1件のみ。
type RevocationRecordModel struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	CertificateID string    `gorm:"type:char(36);not null;uniqueIndex:uk_revrec_certificate"`
	SerialNumber  string    `gorm:"type:varchar(64);not null"`
	RevokeTime    time.Time `gorm:"not null;precision:6"`
	Reason        string    `gorm:"type:varchar(512);not null"`
}

// TableName はテーブル名を返す。
func (RevocationRecordModel) TableName() string {
	return "revocation_records"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *RevocationRecordModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *RevocationRecordModel) toDomain() *domain.RevocationRecord {
	return &domain.RevocationRecord{
		ID:            m.ID,
		CertificateID: m.CertificateID,
		SerialNumber:  m.SerialNumber,
		RevokeTime:    m.RevokeTime,
		Reason:        m.Reason,
	}
}

// RevocationRepository は失効申請と失効記録のデータアクセスを提供する。
type RevocationRepository struct {
	db *gorm.DB
}

// NewRevocationRepository は新しいRevocationRepositoryを生成する。
func NewRevocationRepository(db *gorm.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// CreateRequest は失効申請を保存する。
func (r *RevocationRepository) CreateRequest(ctx context.Context, req *domain.RevocationRequest) error {
	model := &RevocationRequestModel{
		ID:            req.ID,
		CertificateID: req.CertificateID,
		SerialNumber:  req.SerialNumber,
		Requestor:     req.Requestor,
		Reason:        req.Reason,
		Status:        string(req.Status),
		RequestTime:   req.RequestTime,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create revocation request",
			"operation", "create_revocation_request",
			"serial_number", req.SerialNumber,
			"error", err,
		)
		return err
	}
	req.ID = model.ID
	return nil
}

// FindRequestByID はIDで失効申請を取得する。存在しない場合は nil を返す。
func (r *RevocationRepository) FindRequestByID(ctx context.Context, id string) (*domain.RevocationRequest, error) {
	var model RevocationRequestModel
	err := conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find revocation request",
			"operation", "find_revocation_request_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindRequestsByStatus は指定状態の失効申請を申請日時順に取得する。
func (r *RevocationRepository) FindRequestsByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.RevocationRequest, error) {
	var models []RevocationRequestModel
	err := conn(ctx, r.db).
		Where("status = ?", string(status)).
		Order("request_time ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find revocation requests by status",
			"operation", "find_revocation_requests_by_status",
			"status", string(status),
			"error", err,
		)
		return nil, err
	}

	requests := make([]*domain.RevocationRequest, len(models))
	for i := range models {
		requests[i] = models[i].toDomain()
	}
	return requests, nil
}

// HasPendingRequest は証明書に承認待ちの失効申請があるか確認する。
func (r *RevocationRepository) HasPendingRequest(ctx context.Context, certificateID string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&RevocationRequestModel{}).
		Where("certificate_id = ? AND status = ?", certificateID, string(domain.RequestStatusPending)).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count pending revocation requests",
			"operation", "has_pending_revocation_request",
			"certificate_id", certificateID,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// TransitionRequest は PENDING の失効申請を終端状態へ遷移させる。
func (r *RevocationRepository) TransitionRequest(ctx context.Context, id string, t domain.Transition) error {
	updates, err := transitionColumns(t)
	if err != nil {
		return err
	}

	res := conn(ctx, r.db).
		Model(&RevocationRequestModel{}).
		Where("id = ? AND status = ?", id, string(domain.RequestStatusPending)).
		Updates(updates)
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to transition revocation request",
			"operation", "transition_revocation_request",
			"id", id,
			"to", string(t.To),
			"error", res.Error,
		)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: revocation request %s is not pending", domain.ErrInvalidStateTransition, id)
	}
	return nil
}

// CreateRecord は失効記録を追加する。既に失効済みの場合は domain.ErrInvalidStateTransition を返す。
func (r *RevocationRepository) CreateRecord(ctx context.Context, rec *domain.RevocationRecord) error {
	model := &RevocationRecordModel{
		ID:            rec.ID,
		CertificateID: rec.CertificateID,
		SerialNumber:  rec.SerialNumber,
		RevokeTime:    rec.RevokeTime,
		Reason:        rec.Reason,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: certificate %s is already revoked", domain.ErrInvalidStateTransition, rec.SerialNumber)
		}
		slog.ErrorContext(ctx, "failed to create revocation record",
			"operation", "create_revocation_record",
			"serial_number", rec.SerialNumber,
			"error", err,
		)
		return err
	}
	rec.ID = model.ID
	return nil
}

// IsRevoked は証明書の失効記録が存在するか確認する。
func (r *RevocationRepository) IsRevoked(ctx context.Context, certificateID string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&RevocationRecordModel{}).
		Where("certificate_id = ?", certificateID).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to check revocation record",
			"operation", "is_revoked",
			"certificate_id", certificateID,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// ListRecords は全失効記録を失効日時順に取得する。
func (r *RevocationRepository) ListRecords(ctx context.Context) ([]*domain.RevocationRecord, error) {
	var models []RevocationRecordModel
	if err := conn(ctx, r.db).Order("revoke_time ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list revocation records",
			"operation", "list_revocation_records",
			"error", err,
		)
		return nil, err
	}

	records := make([]*domain.RevocationRecord, len(models))
	for i := range models {
		records[i] = models[i].toDomain()
	}
	return records, nil
}
