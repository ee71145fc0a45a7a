// Package migrations はバイナリに埋め込むスキーママイグレーション（MySQL）を提供する。
package migrations

import "embed"

// FS はマイグレーションSQLファイル。
//
//go:embed *.sql
var FS embed.FS
