// Package pkitest はテスト用のCA・鍵・CSRを生成するヘルパーを提供する。
package pkitest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"pki-ca-service/internal/pki"
)

// CAMaterial はテスト用CAのPEMと鍵。
type CAMaterial struct {
	Key      *rsa.PrivateKey
	CertPEM  []byte
	PKCS1PEM []byte
	PKCS8PEM []byte
	Subject  pkix.Name
}

// NewCA は自己署名のテスト用CAを生成する。
func NewCA(t testing.TB) *CAMaterial {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate CA key: %v", err)
	}

	subject := pkix.Name{CommonName: "Test Root CA", Organization: []string{"Test PKI"}}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               subject,
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create CA certificate: %v", err)
	}

	pkcs8, err := pki.EncodePrivateKeyPEM(key)
	if err != nil {
		t.Fatalf("failed to encode CA key: %v", err)
	}

	return &CAMaterial{
		Key:      key,
		CertPEM:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PKCS1PEM: pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
		PKCS8PEM: pkcs8,
		Subject:  subject,
	}
}

// NewCAContext はテスト用CAからCAContextを生成する。
func NewCAContext(t testing.TB) (*pki.CAContext, *CAMaterial) {
	t.Helper()

	m := NewCA(t)
	ca, err := pki.NewCAContext(m.CertPEM, m.PKCS8PEM)
	if err != nil {
		t.Fatalf("failed to build CA context: %v", err)
	}
	return ca, m
}

// NewKey はテスト用のRSA鍵を生成する。
func NewKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// NewCSR は指定CNのCSRを生成し、鍵とともに返す。
func NewCSR(t testing.TB, commonName string) (*rsa.PrivateKey, string) {
	t.Helper()

	key := NewKey(t)
	csrPEM, err := pki.CreateCSR(key, pkix.Name{CommonName: commonName})
	if err != nil {
		t.Fatalf("failed to create CSR: %v", err)
	}
	return key, csrPEM
}

// Sign はメッセージに署名する。
func Sign(t testing.TB, key *rsa.PrivateKey, message string) string {
	t.Helper()

	sig, err := pki.SignMessage(key, []byte(message))
	if err != nil {
		t.Fatalf("failed to sign message: %v", err)
	}
	return sig
}

// PublicKeyPEM は公開鍵をPEMで返す。
func PublicKeyPEM(t testing.TB, key *rsa.PrivateKey) string {
	t.Helper()

	p, err := pki.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to encode public key: %v", err)
	}
	return string(p)
}
