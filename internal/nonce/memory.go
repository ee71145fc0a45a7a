package nonce

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"pki-ca-service/internal/domain"
)

// MemoryStore はプロセス内のチャレンジ保管。単一のミューテックスで各操作を原子的に行う。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]domain.Nonce
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore は新しいMemoryStoreを生成する。now が nil の場合は time.Now を使う。
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]domain.Nonce),
		ttl:     domain.NonceTTL,
		now:     now,
	}
}

// Issue は新しいチャレンジを発行し、同じ (subject, purpose) の既存チャレンジを上書きする。
func (s *MemoryStore) Issue(ctx context.Context, subject string, purpose domain.NoncePurpose) (*domain.Nonce, error) {
	value, err := newToken(purpose)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := domain.Nonce{
		Subject:   subject,
		Purpose:   purpose,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.entries[storeKey(subject, purpose)] = n
	return &n, nil
}

// Peek は有効なチャレンジを返す。期限切れの場合はエントリを削除して NonceExpired を返す。
func (s *MemoryStore) Peek(ctx context.Context, subject string, purpose domain.NoncePurpose) (domain.NonceLookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(subject, purpose)
	n, ok := s.entries[key]
	if !ok {
		return domain.NonceLookup{State: domain.NonceNotFound}, nil
	}
	if !n.UsableAt(s.now()) {
		delete(s.entries, key)
		return domain.NonceLookup{State: domain.NonceExpired}, nil
	}
	return domain.NonceLookup{State: domain.NonceFound, Nonce: &n}, nil
}

// Consume は value と一致する有効なチャレンジを原子的に削除し、削除できたかを返す。
func (s *MemoryStore) Consume(ctx context.Context, subject string, purpose domain.NoncePurpose, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(subject, purpose)
	n, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !n.UsableAt(s.now()) {
		delete(s.entries, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(n.Value), []byte(value)) != 1 {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Sweep は期限切れのエントリを削除し、削除件数を返す。
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, n := range s.entries {
		if !n.UsableAt(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len は保持しているエントリ数を返す（期限切れを含む）。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run は ctx がキャンセルされるまで interval ごとに Sweep を実行する。
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				slog.DebugContext(ctx, "swept expired challenges",
					"operation", "nonce_sweep",
					"removed", removed,
				)
			}
		}
	}
}
