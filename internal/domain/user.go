package domain

import "time"

// User は署名ログインを行う利用者を表す。
type User struct {
	ID             string
	Username       string
	Email          string
	LoginPublicKey string // PEM または Base64 の SubjectPublicKeyInfo
	RegisteredAt   time.Time
}

// Recipient は通知の宛先を表す。
type Recipient struct {
	Username string
	Email    string
}
