package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki"
)

// KeyDecrypter は暗号化されたCA秘密鍵を復号する。KMSClient が実装する。
type KeyDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// LoadCA はファイルからCA証明書と秘密鍵を読み込み、CAContextを生成する。
// decrypter が nil でなければ鍵ファイルをKMS暗号文として復号する。
// 秘密鍵のPEMは読み込み直後にenclaveへ封入し、解析後に破棄する。
func LoadCA(ctx context.Context, certPath, keyPath string, decrypter KeyDecrypter) (*pki.CAContext, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA certificate: %w", domain.ErrCAKeyLoad, err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA private key: %w", domain.ErrCAKeyLoad, err)
	}

	if decrypter != nil {
		plaintext, err := decrypter.Decrypt(ctx, keyData)
		memguard.WipeBytes(keyData)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCAKeyLoad, err)
		}
		keyData = plaintext
	}
	if len(keyData) == 0 {
		return nil, fmt.Errorf("%w: private key is empty", domain.ErrCAKeyLoad)
	}

	// NewEnclave は keyData を消去する
	enclave := memguard.NewEnclave(keyData)
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening key enclave: %w", domain.ErrCAKeyLoad, err)
	}
	defer buf.Destroy()

	return pki.NewCAContext(certPEM, buf.Bytes())
}
