package pki

import (
	"strconv"
	"sync"
	"time"
)

// SerialPrefix は発行シリアル番号の接頭辞。
const SerialPrefix = "SN-"

// SerialGenerator はミリ秒時刻に基づく単調増加のシリアル番号を生成する。
// 一意性の最終的な保証は保存層の一意制約で行う。
type SerialGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewSerialGenerator は新しいSerialGeneratorを生成する。
func NewSerialGenerator() *SerialGenerator {
	return &SerialGenerator{now: time.Now}
}

// Next は次のシリアル番号を返す。同一ミリ秒内の呼び出しでも重複しない。
func (g *SerialGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return SerialPrefix + strconv.FormatInt(ms, 10)
}
