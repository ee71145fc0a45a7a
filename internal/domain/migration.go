package domain

import "time"

// MigrationStatus はスキーママイグレーションの適用状態。
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はバイナリに埋め込まれたスキーママイグレーション1件。
// ファイル名 {version}_{name}.sql から Version と Name を得る。
type Migration struct {
	Version   string
	Name      string
	FilePath  string     // 埋め込みFS内のパス
	AppliedAt *time.Time // 未適用なら nil
	Status    MigrationStatus
}

// MarkApplied は適用済みとして記録する。
func (m *Migration) MarkApplied(at *time.Time) {
	m.Status = MigrationStatusApplied
	m.AppliedAt = at
}
