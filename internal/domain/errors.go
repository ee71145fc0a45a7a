package domain

import "errors"

var (
	// ErrChallengeNotFound は有効なチャレンジが存在しない（消費済みを含む）場合のエラー。
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired はチャレンジの有効期限が切れている場合のエラー。
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrKeyFormat は公開鍵の形式が不正な場合のエラー。
	ErrKeyFormat = errors.New("invalid public key format")

	// ErrSignatureFormat は署名のエンコーディングが不正な場合のエラー。
	ErrSignatureFormat = errors.New("invalid signature encoding")

	// ErrPopVerification はCSRの鍵所持証明に失敗した場合のエラー。
	ErrPopVerification = errors.New("CSR not bound to presented key")

	// ErrCsrFormat はCSRがPKCS#10として解析できない場合のエラー。
	ErrCsrFormat = errors.New("invalid PKCS#10 certificate request")

	// ErrCAKeyLoad はCA鍵素材の読み込みに失敗した場合のエラー。起動時に致命的。
	ErrCAKeyLoad = errors.New("failed to load CA key material")

	// ErrIssuance は証明書の発行処理に失敗した場合のエラー。
	ErrIssuance = errors.New("certificate issuance failed")

	// ErrInvalidStateTransition は状態遷移や前提条件に違反した場合のエラー。
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrDuplicateSerial はシリアル番号が既に使用されている場合のエラー。
	ErrDuplicateSerial = errors.New("duplicate certificate serial number")

	// ErrNotCertificateOwner は申請者が証明書の所有者でない場合のエラー。
	ErrNotCertificateOwner = errors.New("requestor does not own the certificate")

	// ErrUserNotFound は指定されたユーザーが存在しない場合のエラー。
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists はユーザー名が既に登録されている場合のエラー。
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidUsername はユーザー名の形式が不正な場合のエラー。
	ErrInvalidUsername = errors.New("invalid username")

	// ErrLoginVerification はログイン署名の検証に失敗した場合のエラー。
	ErrLoginVerification = errors.New("login signature verification failed")

	// ErrRequestNotFound は指定された申請が存在しない場合のエラー。
	ErrRequestNotFound = errors.New("request not found")

	// ErrCertificateNotFound は指定された証明書が存在しない場合のエラー。
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrInvalidReason は理由が未指定または長すぎる場合のエラー。
	ErrInvalidReason = errors.New("invalid reason")

	// ErrCertificateNotValid は証明書が有効状態でない場合のエラー。
	ErrCertificateNotValid = errors.New("certificate is not valid")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
