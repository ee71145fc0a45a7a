package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki"
)

const maxUsernameLength = 64

// AuthService は利用者登録と署名によるログインを提供する。
type AuthService struct {
	users  UserRepository
	nonces NonceStore
}

// NewAuthService は新しいAuthServiceを生成する。
func NewAuthService(users UserRepository, nonces NonceStore) *AuthService {
	return &AuthService{
		users:  users,
		nonces: nonces,
	}
}

// validateUsername はユーザー名の形式を検証する。英数字と . _ - のみ許可する。
func validateUsername(username string) error {
	if username == "" || len(username) > maxUsernameLength {
		return fmt.Errorf("%w: length must be 1-%d", domain.ErrInvalidUsername, maxUsernameLength)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("%w: unexpected character %q", domain.ErrInvalidUsername, r)
		}
	}
	return nil
}

// Register は利用者とログイン用公開鍵を登録する。
func (s *AuthService) Register(ctx context.Context, username, email, loginPublicKey string) (*domain.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if _, err := pki.ParsePublicKey(loginPublicKey); err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:       username,
		Email:          strings.TrimSpace(email),
		LoginPublicKey: strings.TrimSpace(loginPublicKey),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// IssueLoginChallenge は登録済み利用者にログイン用チャレンジを発行する。以前のチャレンジは無効になる。
func (s *AuthService) IssueLoginChallenge(ctx context.Context, username string) (*domain.Nonce, error) {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return nil, err
	}

	nonce, err := s.nonces.Issue(ctx, user.Username, domain.NoncePurposeLogin)
	if err != nil {
		return nil, fmt.Errorf("issuing login challenge: %w", err)
	}
	return nonce, nil
}

// VerifyLogin は有効なログインチャレンジへの署名を登録済み公開鍵で検証する。
// 成功時のみチャレンジを消費し、同じ署名の再利用は domain.ErrChallengeNotFound となる。
func (s *AuthService) VerifyLogin(ctx context.Context, username, signatureB64 string) (*domain.User, error) {
	user, err := s.findUser(ctx, username)
	if err != nil {
		return nil, err
	}

	lookup, err := s.nonces.Peek(ctx, user.Username, domain.NoncePurposeLogin)
	if err != nil {
		return nil, fmt.Errorf("reading login challenge: %w", err)
	}
	if err := lookup.Err(); err != nil {
		return nil, err
	}
	challenge := lookup.Nonce.Value

	pub, err := pki.ParsePublicKey(user.LoginPublicKey)
	if err != nil {
		return nil, err
	}
	ok, err := pki.Verify(pub, []byte(challenge), signatureB64)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.InfoContext(ctx, "login signature mismatch",
			"operation", "verify_login",
			"username", user.Username,
			"challenge_sha256", pki.SHA256Hex(challenge),
		)
		return nil, domain.ErrLoginVerification
	}

	consumed, err := s.nonces.Consume(ctx, user.Username, domain.NoncePurposeLogin, challenge)
	if err != nil {
		return nil, fmt.Errorf("consuming login challenge: %w", err)
	}
	if !consumed {
		return nil, domain.ErrChallengeNotFound
	}
	return user, nil
}

func (s *AuthService) findUser(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}
