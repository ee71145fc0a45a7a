// Package nonce はサブジェクト・用途ごとに一度だけ使用できるチャレンジの保管を提供する。
//
// すべての実装は次を満たす。
//   - (subject, purpose) ごとに有効なチャレンジは高々1つ。再発行で以前の値は無効になる。
//   - Consume は線形化可能で、同じチャレンジを消費できる呼び出し元は1つだけ。
//   - 期限切れのチャレンジはすべての読み取りで存在しないものとして扱う。
package nonce

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"pki-ca-service/internal/domain"
)

const (
	// csrTokenBytes はCSR鍵所持証明用チャレンジの乱数バイト数（Base64で出力）。
	csrTokenBytes = 32
	// loginTokenBytes はログイン用チャレンジの乱数バイト数（32桁の16進で出力）。
	loginTokenBytes = 16
)

// newToken は用途に応じた形式でランダムなチャレンジ値を生成する。
func newToken(purpose domain.NoncePurpose) (string, error) {
	switch purpose {
	case domain.NoncePurposeCSRBinding:
		buf := make([]byte, csrTokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating challenge: %w", err)
		}
		return base64.StdEncoding.EncodeToString(buf), nil
	case domain.NoncePurposeLogin:
		buf := make([]byte, loginTokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating challenge: %w", err)
		}
		return hex.EncodeToString(buf), nil
	default:
		return "", fmt.Errorf("unknown nonce purpose %q", purpose)
	}
}

// storeKey は (subject, purpose) の名前空間付きキーを返す。
func storeKey(subject string, purpose domain.NoncePurpose) string {
	return string(purpose) + ":" + subject
}
