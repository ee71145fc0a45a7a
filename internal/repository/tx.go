// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor はコンテキストにトランザクションを載せて関数を実行する。
type Transactor struct {
	db *gorm.DB
}

// NewTransactor は新しいTransactorを生成する。
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTransaction は fn を単一のトランザクション内で実行する。
// fn がエラーを返した場合はロールバックされる。入れ子の呼び出しは外側のトランザクションを共有する。
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn はコンテキストにトランザクションがあればそれを、なければ db を返す。
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

// isDuplicateKey は一意制約違反かどうかを判定する。
// TranslateError が無効な接続でも MySQL / SQLite のメッセージで判定できるようにしている。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

// Models はこのパッケージが扱う全モデルを返す。SQLite 開発環境の AutoMigrate に使う。
func Models() []any {
	return []any{
		&UserModel{},
		&ApplicationRequestModel{},
		&CertificateModel{},
		&RevocationRequestModel{},
		&RevocationRecordModel{},
		&SchemaMigrationModel{},
	}
}

// AutoMigrate はモデル定義からテーブルを作成する。
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(Models()...)
}
