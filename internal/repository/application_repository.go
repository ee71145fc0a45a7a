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

// ApplicationRequestModel はapplication_requestsテーブルのモデル。
type ApplicationRequestModel struct {
	ID           string     `gorm:"type:char(36);primaryKey"`
	Requestor    string     `gorm:"type:varchar(64);not null;index:idx_app_requestor"`
	CSRPEM       string     `gorm:"column:csr_pem;type:text;not null"`
	Status       string     `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_app_status"`
	RequestTime  time.Time  `gorm:"not null;precision:6"`
	ApproveTime  *time.Time `gorm:"precision:6"`
	ApprovedBy   string     `gorm:"type:varchar(64);not null;default:''"`
	RejectTime   *time.Time `gorm:"precision:6"`
	RejectReason string     `gorm:"type:varchar(512);not null;default:''"`
	RejectBy     string     `gorm:"type:varchar(64);not null;default:''"`
}

// TableName はテーブル名を返す。
func (ApplicationRequestModel) TableName() string {
	return "application_requests"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *ApplicationRequestModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *ApplicationRequestModel) toDomain() *domain.ApplicationRequest {
	return &domain.ApplicationRequest{
		ID:           m.ID,
		Requestor:    m.Requestor,
		CSRPEM:       m.CSRPEM,
		Status:       domain.RequestStatus(m.Status),
		RequestTime:  m.RequestTime,
		ApproveTime:  m.ApproveTime,
		ApprovedBy:   m.ApprovedBy,
		RejectTime:   m.RejectTime,
		RejectReason: m.RejectReason,
		RejectBy:     m.RejectBy,
	}
}

// ApplicationRepository は証明書発行申請のデータアクセスを提供する。
type ApplicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository は新しいApplicationRepositoryを生成する。
func NewApplicationRepository(db *gorm.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create は申請を保存する。
func (r *ApplicationRepository) Create(ctx context.Context, req *domain.ApplicationRequest) error {
	model := &ApplicationRequestModel{
		ID:          req.ID,
		Requestor:   req.Requestor,
		CSRPEM:      req.CSRPEM,
		Status:      string(req.Status),
		RequestTime: req.RequestTime,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create application request",
			"operation", "create_application",
			"requestor", req.Requestor,
			"error", err,
		)
		return err
	}
	req.ID = model.ID
	return nil
}

// FindByID はIDで申請を取得する。存在しない場合は nil を返す。
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*domain.ApplicationRequest, error) {
	var model ApplicationRequestModel
	err := conn(ctx, r.db).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find application request",
			"operation", "find_application_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindByStatus は指定状態の申請を申請日時順に取得する。
func (r *ApplicationRepository) FindByStatus(ctx context.Context, status domain.RequestStatus) ([]*domain.ApplicationRequest, error) {
	var models []ApplicationRequestModel
	err := conn(ctx, r.db).
		Where("status = ?", string(status)).
		Order("request_time ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find application requests by status",
			"operation", "find_applications_by_status",
			"status", string(status),
			"error", err,
		)
		return nil, err
	}

	requests := make([]*domain.ApplicationRequest, len(models))
	for i := range models {
		requests[i] = models[i].toDomain()
	}
	return requests, nil
}

// FindByRequestor は申請者の申請を新しい順に取得する。
func (r *ApplicationRepository) FindByRequestor(ctx context.Context, requestor string) ([]*domain.ApplicationRequest, error) {
	var models []ApplicationRequestModel
	err := conn(ctx, r.db).
		Where("requestor = ?", requestor).
		Order("request_time DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find application requests by requestor",
			"operation", "find_applications_by_requestor",
			"requestor", requestor,
			"error", err,
		)
		return nil, err
	}

	requests := make([]*domain.ApplicationRequest, len(models))
	for i := range models {
		requests[i] = models[i].toDomain()
	}
	return requests, nil
}

// Transition は PENDING の申請を終端状態へ遷移させる。
// 更新は status = PENDING を条件に行い、該当行がなければ domain.ErrInvalidStateTransition を返す。
func (r *ApplicationRepository) Transition(ctx context.Context, id string, t domain.Transition) error {
	updates, err := transitionColumns(t)
	if err != nil {
		return err
	}

	res := conn(ctx, r.db).
		Model(&ApplicationRequestModel{}).
		Where("id = ? AND status = ?", id, string(domain.RequestStatusPending)).
		Updates(updates)
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to transition application request",
			"operation", "transition_application",
			"id", id,
			"to", string(t.To),
			"error", res.Error,
		)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: application %s is not pending", domain.ErrInvalidStateTransition, id)
	}
	return nil
}

// transitionColumns は遷移内容を更新カラムに変換する。
func transitionColumns(t domain.Transition) (map[string]any, error) {
	if !domain.RequestStatusPending.CanTransitionTo(t.To) {
		return nil, fmt.Errorf("%w: PENDING to %s", domain.ErrInvalidStateTransition, t.To)
	}
	updates := map[string]any{"status": string(t.To)}
	switch t.To {
	case domain.RequestStatusApproved:
		updates["approve_time"] = t.At
		updates["approved_by"] = t.By
	case domain.RequestStatusRejected:
		updates["reject_time"] = t.At
		updates["reject_by"] = t.By
		updates["reject_reason"] = t.Reason
	}
	return updates, nil
}
