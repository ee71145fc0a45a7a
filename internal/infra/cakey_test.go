package infra

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pki-ca-service/internal/domain"
	"pki-ca-service/internal/pki/pkitest"
)

// base64Decrypter は鍵ファイルをBase64として復号するテスト用実装。
type base64Decrypter struct {
	err error
}

func (d *base64Decrypter) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return base64.StdEncoding.DecodeString(string(ciphertext))
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadCA(t *testing.T) {
	m := pkitest.NewCA(t)
	dir := t.TempDir()
	certPath := writeFile(t, dir, "ca.crt", m.CertPEM)
	pkcs1Path := writeFile(t, dir, "ca-pkcs1.key", m.PKCS1PEM)
	pkcs8Path := writeFile(t, dir, "ca-pkcs8.key", m.PKCS8PEM)

	for name, keyPath := range map[string]string{"pkcs1": pkcs1Path, "pkcs8": pkcs8Path} {
		t.Run(name, func(t *testing.T) {
			ca, err := LoadCA(context.Background(), certPath, keyPath, nil)
			if err != nil {
				t.Fatalf("LoadCA failed: %v", err)
			}
			if ca.Subject().CommonName != m.Subject.CommonName {
				t.Errorf("expected subject %s, got %s", m.Subject.CommonName, ca.Subject().CommonName)
			}
		})
	}
}

func TestLoadCA_Encrypted(t *testing.T) {
	m := pkitest.NewCA(t)
	dir := t.TempDir()
	certPath := writeFile(t, dir, "ca.crt", m.CertPEM)
	keyPath := writeFile(t, dir, "ca.key.enc", []byte(base64.StdEncoding.EncodeToString(m.PKCS8PEM)))

	if _, err := LoadCA(context.Background(), certPath, keyPath, &base64Decrypter{}); err != nil {
		t.Fatalf("LoadCA failed: %v", err)
	}

	_, err := LoadCA(context.Background(), certPath, keyPath, &base64Decrypter{err: errors.New("permission denied")})
	if !errors.Is(err, domain.ErrCAKeyLoad) {
		t.Errorf("expected ErrCAKeyLoad, got %v", err)
	}
}

func TestLoadCA_Errors(t *testing.T) {
	m := pkitest.NewCA(t)
	other := pkitest.NewCA(t)
	dir := t.TempDir()
	certPath := writeFile(t, dir, "ca.crt", m.CertPEM)
	keyPath := writeFile(t, dir, "ca.key", m.PKCS8PEM)
	otherKeyPath := writeFile(t, dir, "other.key", other.PKCS8PEM)
	emptyPath := writeFile(t, dir, "empty.key", nil)

	tests := []struct {
		name     string
		certPath string
		keyPath  string
	}{
		{"missing certificate", filepath.Join(dir, "nope.crt"), keyPath},
		{"missing key", certPath, filepath.Join(dir, "nope.key")},
		{"empty key", certPath, emptyPath},
		{"mismatched key", certPath, otherKeyPath},
		{"key as certificate", keyPath, keyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCA(context.Background(), tt.certPath, tt.keyPath, nil)
			if !errors.Is(err, domain.ErrCAKeyLoad) {
				t.Errorf("expected ErrCAKeyLoad, got %v", err)
			}
		})
	}
}
