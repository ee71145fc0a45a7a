package domain

import "time"

// NonceTTL はチャレンジの有効期間。
const NonceTTL = 5 * time.Minute

// NoncePurpose はチャレンジの用途（名前空間）を表す。
type NoncePurpose string

const (
	// NoncePurposeLogin は署名ログイン用のチャレンジ。
	NoncePurposeLogin NoncePurpose = "login"
	// NoncePurposeCSRBinding はCSR鍵所持証明用のチャレンジ。
	NoncePurposeCSRBinding NoncePurpose = "csr"
)

// Valid は既知の用途かどうかを返す。
func (p NoncePurpose) Valid() bool {
	return p == NoncePurposeLogin || p == NoncePurposeCSRBinding
}

// Nonce は一度だけ使用できる時間制限付きチャレンジを表す。
type Nonce struct {
	Subject   string
	Purpose   NoncePurpose
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UsableAt は指定時刻にチャレンジが使用可能かを返す。
func (n *Nonce) UsableAt(now time.Time) bool {
	return now.Before(n.ExpiresAt)
}

// NonceState はチャレンジ参照結果の種別を表す。
type NonceState int

const (
	NonceFound NonceState = iota
	NonceNotFound
	NonceExpired
)

// NonceLookup はチャレンジ参照の結果。State が NonceFound の場合のみ Nonce が設定される。
type NonceLookup struct {
	State NonceState
	Nonce *Nonce
}

// Err は参照結果を対応するエラーに変換する。見つかった場合は nil。
func (l NonceLookup) Err() error {
	switch l.State {
	case NonceFound:
		return nil
	case NonceExpired:
		return ErrChallengeExpired
	default:
		return ErrChallengeNotFound
	}
}
