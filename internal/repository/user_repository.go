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

// UserModel はusersテーブルのモデル。
type UserModel struct {
	ID             string    `gorm:"type:char(36);primaryKey"`
	Username       string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_users_username"`
	Email          string    `gorm:"type:varchar(255);not null;default:''"`
	LoginPublicKey string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;precision:6;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (UserModel) TableName() string {
	return "users"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *UserModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *UserModel) toDomain() *domain.User {
	return &domain.User{
		ID:             m.ID,
		Username:       m.Username,
		Email:          m.Email,
		LoginPublicKey: m.LoginPublicKey,
		RegisteredAt:   m.CreatedAt,
	}
}

// UserRepository は利用者のデータアクセスを提供する。
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository は新しいUserRepositoryを生成する。
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create は利用者を登録する。ユーザー名が重複する場合は domain.ErrUserAlreadyExists を返す。
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	model := &UserModel{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		LoginPublicKey: user.LoginPublicKey,
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", domain.ErrUserAlreadyExists, user.Username)
		}
		slog.ErrorContext(ctx, "failed to create user",
			"operation", "create_user",
			"username", user.Username,
			"error", err,
		)
		return err
	}
	user.ID = model.ID
	user.RegisteredAt = model.CreatedAt
	return nil
}

// FindByUsername はユーザー名で利用者を取得する。存在しない場合は nil を返す。
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model UserModel
	err := conn(ctx, r.db).Where("username = ?", username).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find user",
			"operation", "find_user_by_username",
			"username", username,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
