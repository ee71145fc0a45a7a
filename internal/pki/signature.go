// Package pki はCAの暗号処理（署名検証・CSR処理・証明書発行）を提供する。
// I/O を持たず、鍵素材は呼び出し側から受け取る。
package pki

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"pki-ca-service/internal/domain"
)

const publicKeyPEMType = "PUBLIC KEY"

// ParsePublicKey はPEMまたはBase64形式のSubjectPublicKeyInfoからRSA公開鍵を取り出す。
func ParsePublicKey(pemOrBase64 string) (*rsa.PublicKey, error) {
	der, err := publicKeyDER(pemOrBase64)
	if err != nil {
		return nil, err
	}

	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyFormat, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key (%T)", domain.ErrKeyFormat, key)
	}
	return rsaKey, nil
}

// publicKeyDER はPEMの外装を取り除き、DERバイト列を返す。
func publicKeyDER(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", domain.ErrKeyFormat)
	}

	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, fmt.Errorf("%w: malformed PEM", domain.ErrKeyFormat)
		}
		if block.Type != publicKeyPEMType {
			return nil, fmt.Errorf("%w: unexpected PEM type %q", domain.ErrKeyFormat, block.Type)
		}
		return block.Bytes, nil
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyFormat, err)
	}
	return der, nil
}

// Verify はメッセージに対するSHA256withRSA（PKCS#1 v1.5）署名を検証する。
// 署名が一致しない場合は false を返し、エンコーディング不正のみエラーとする。
func Verify(pub *rsa.PublicKey, message []byte, signatureBase64 string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureBase64))
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrSignatureFormat, err)
	}
	if len(sig) == 0 {
		return false, fmt.Errorf("%w: empty signature", domain.ErrSignatureFormat)
	}

	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return false, nil
	}
	return true, nil
}

// SHA256Hex は入力のSHA-256ダイジェストを16進文字列で返す。診断ログ用。
func SHA256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
