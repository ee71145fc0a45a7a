package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"

	"pki-ca-service/internal/domain"
)

// CAContext はCA証明書と署名鍵を保持する。起動時に一度だけ生成され、以後は読み取り専用。
type CAContext struct {
	cert    *x509.Certificate
	certPEM string
	signer  crypto.Signer
}

// NewCAContext はPEM形式のCA証明書と秘密鍵からCAContextを生成する。
// 鍵が欠落・未対応形式・証明書と不一致の場合は ErrCAKeyLoad を返す。
func NewCAContext(certPEM, keyPEM []byte) (*CAContext, error) {
	if len(keyPEM) == 0 {
		return nil, fmt.Errorf("%w: private key is empty", domain.ErrCAKeyLoad)
	}
	if len(certPEM) == 0 {
		return nil, fmt.Errorf("%w: certificate is empty", domain.ErrCAKeyLoad)
	}

	key, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCAKeyLoad, err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: CA certificate is not a PEM certificate", domain.ErrCAKeyLoad)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCAKeyLoad, err)
	}

	certPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !certPub.Equal(&key.PublicKey) {
		return nil, fmt.Errorf("%w: private key does not match CA certificate", domain.ErrCAKeyLoad)
	}

	return &CAContext{
		cert:    cert,
		certPEM: string(pem.EncodeToMemory(block)),
		signer:  key,
	}, nil
}

// Certificate はCA証明書を返す。
func (c *CAContext) Certificate() *x509.Certificate {
	return c.cert
}

// CertificatePEM はCA証明書をPEMで返す。
func (c *CAContext) CertificatePEM() string {
	return c.certPEM
}

// Subject はCAのサブジェクトDN（発行者名）を返す。
func (c *CAContext) Subject() pkix.Name {
	return c.cert.Subject
}
