package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pki-ca-service/internal/domain"
)

// CertificateModel はcertificatesテーブルのモデル。状態ラベルは保持せず、常に評価で求める。
type CertificateModel struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	Owner          string    `gorm:"type:varchar(64);not null;index:idx_cert_owner"`
	SerialNumber   string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_cert_serial"`
	CertificatePEM string    `gorm:"column:certificate_pem;type:text;not null"`
	ValidFrom      time.Time `gorm:"not null;precision:6"`
	ValidTo        time.Time `gorm:"not null;precision:6"`
	IssueTime      time.Time `gorm:"not null;precision:6"`
	SourceCSR      string    `gorm:"column:source_csr;type:text;not null"`
	ApplicationID  string    `gorm:"type:char(36);not null;index:idx_cert_application"`
}

// TableName はテーブル名を返す。
func (CertificateModel) TableName() string {
	return "certificates"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *CertificateModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *CertificateModel) toDomain() *domain.Certificate {
	return &domain.Certificate{
		ID:             m.ID,
		Owner:          m.Owner,
		SerialNumber:   m.SerialNumber,
		CertificatePEM: m.CertificatePEM,
		ValidFrom:      m.ValidFrom,
		ValidTo:        m.ValidTo,
		IssueTime:      m.IssueTime,
		SourceCSR:      m.SourceCSR,
		ApplicationID:  m.ApplicationID,
	}
}

// CertificateRepository は発行済み証明書のデータアクセスを提供する。
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository は新しいCertificateRepositoryを生成する。
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create は証明書を保存する。シリアル番号が重複する場合は domain.ErrDuplicateSerial を返す。
func (r *CertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	model := &CertificateModel{
		ID:             cert.ID,
		Owner:          cert.Owner,
		SerialNumber:   cert.SerialNumber,
		CertificatePEM: cert.CertificatePEM,
		ValidFrom:      cert.ValidFrom,
		ValidTo:        cert.ValidTo,
		IssueTime:      cert.IssueTime,
		SourceCSR:      cert.SourceCSR,
		ApplicationID:  cert.ApplicationID,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSerial, cert.SerialNumber)
		}
		slog.ErrorContext(ctx, "failed to create certificate",
			"operation", "create_certificate",
			"serial_number", cert.SerialNumber,
			"error", err,
		)
		return err
	}
	cert.ID = model.ID
	return nil
}

// FindByID はIDで証明書を取得する。存在しない場合は nil を返す。
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*domain.Certificate, error) {
	return r.findOne(ctx, "find_certificate_by_id", "id = ?", id)
}

// FindBySerial はシリアル番号で証明書を取得する。存在しない場合は nil を返す。
func (r *CertificateRepository) FindBySerial(ctx context.Context, serial string) (*domain.Certificate, error) {
	return r.findOne(ctx, "find_certificate_by_serial", "serial_number = ?", serial)
}

func (r *CertificateRepository) findOne(ctx context.Context, operation, query string, arg string) (*domain.Certificate, error) {
	var model CertificateModel
	err := conn(ctx, r.db).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate",
			"operation", operation,
			"key", arg,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// LockForUpdate はトランザクション内で証明書の行を排他ロックする。
// 同じ証明書に対する失効申請の確認と登録を直列化する。
func (r *CertificateRepository) LockForUpdate(ctx context.Context, id string) error {
	var model CertificateModel
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrCertificateNotFound, id)
		}
		slog.ErrorContext(ctx, "failed to lock certificate",
			"operation", "lock_certificate",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByOwner は所有者の証明書を発行日時の新しい順に取得する。
func (r *CertificateRepository) FindByOwner(ctx context.Context, owner string) ([]*domain.Certificate, error) {
	var models []CertificateModel
	err := conn(ctx, r.db).
		Where("owner = ?", owner).
		Order("issue_time DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find certificates by owner",
			"operation", "find_certificates_by_owner",
			"owner", owner,
			"error", err,
		)
		return nil, err
	}

	certs := make([]*domain.Certificate, len(models))
	for i := range models {
		certs[i] = models[i].toDomain()
	}
	return certs, nil
}
