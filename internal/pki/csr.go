package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"pki-ca-service/internal/domain"
)

// ParseCSR はPEM形式のPKCS#10要求を解析し、サブジェクトと公開鍵を返す。
func ParseCSR(csrPEM string) (*domain.CSRInfo, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(csrPEM)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", domain.ErrCsrFormat)
	}
	if block.Type != "CERTIFICATE REQUEST" && block.Type != "NEW CERTIFICATE REQUEST" {
		return nil, fmt.Errorf("%w: unexpected PEM type %q", domain.ErrCsrFormat, block.Type)
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCsrFormat, err)
	}

	return &domain.CSRInfo{
		Subject:   csr.Subject,
		PublicKey: csr.PublicKey,
	}, nil
}

// VerifyBinding はCSRの公開鍵でチャレンジへの署名を検証し、申請者が対応する秘密鍵を
// 所持していることを確認する。CSR自体の自己署名とは独立に判定する。
func VerifyBinding(csrPublicKey crypto.PublicKey, challenge, signatureBase64 string) error {
	pub, ok := csrPublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: unsupported CSR key type %T", domain.ErrPopVerification, csrPublicKey)
	}

	verified, err := Verify(pub, []byte(challenge), signatureBase64)
	if err != nil {
		return err
	}
	if !verified {
		return domain.ErrPopVerification
	}
	return nil
}
