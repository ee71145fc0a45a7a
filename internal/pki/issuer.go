package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"

	"pki-ca-service/internal/domain"
)

// CertificateValidityDays は発行する証明書の有効日数。
const CertificateValidityDays = 365

// IssuedCertificate は発行結果を表す。時刻は証明書にエンコードされた値（秒精度）。
type IssuedCertificate struct {
	PEM          string
	SerialNumber *big.Int
	NotBefore    time.Time
	NotAfter     time.Time
}

// Issuer はCA鍵でX.509 v3証明書に署名する。発行した証明書への参照は保持しない。
type Issuer struct {
	ca  *CAContext
	now func() time.Time
}

// NewIssuer は新しいIssuerを生成する。
func NewIssuer(ca *CAContext) *Issuer {
	return &Issuer{ca: ca, now: time.Now}
}

// CA は署名に使用するCAContextを返す。
func (i *Issuer) CA() *CAContext {
	return i.ca
}

// Issue はサブジェクト名・公開鍵・シリアル番号から証明書を発行しPEMで返す。
// 失敗時は ErrIssuance で原因をラップして返す。再試行時はシリアル番号を再生成すること。
func (i *Issuer) Issue(subjectPublicKey crypto.PublicKey, subject pkix.Name, serialNumber string) (*IssuedCertificate, error) {
	serial, err := ParseSerial(serialNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIssuance, err)
	}

	ski, err := SubjectKeyID(subjectPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIssuance, err)
	}

	now := i.now().UTC()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, CertificateValidityDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		IsCA:                  false,
		SubjectKeyId:          ski,
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, i.ca.cert, subjectPublicKey, i.ca.signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIssuance, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIssuance, err)
	}

	return &IssuedCertificate{
		PEM:          string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		SerialNumber: cert.SerialNumber,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
	}, nil
}

// ParseSerial はシリアル文字列から数字以外を除去し、正の整数として解釈する。
func ParseSerial(serialNumber string) (*big.Int, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, serialNumber)
	if digits == "" {
		return nil, fmt.Errorf("serial %q contains no digits", serialNumber)
	}

	serial, ok := new(big.Int).SetString(digits, 10)
	if !ok || serial.Sign() <= 0 {
		return nil, fmt.Errorf("serial %q is not a positive integer", serialNumber)
	}
	return serial, nil
}

// SubjectKeyID はRFC 5280 4.2.1.2 の方式(1)でサブジェクト鍵識別子を算出する
// （subjectPublicKey BIT STRING のSHA-1）。
func SubjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling subject public key: %w", err)
	}

	input := cryptobyte.String(der)
	var spki, algorithm cryptobyte.String
	var bits asn1.BitString
	if !input.ReadASN1(&spki, cryptobyte_asn1.SEQUENCE) ||
		!spki.ReadASN1(&algorithm, cryptobyte_asn1.SEQUENCE) ||
		!spki.ReadASN1BitString(&bits) {
		return nil, errors.New("malformed SubjectPublicKeyInfo")
	}

	sum := sha1.Sum(bits.Bytes)
	return sum[:], nil
}
