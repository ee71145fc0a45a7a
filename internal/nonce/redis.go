package nonce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"pki-ca-service/internal/domain"
)

// redisKeyPrefix は全チャレンジキーの接頭辞。
const redisKeyPrefix = "nonce:"

// expiredGrace は期限切れのエントリを保持する猶予。この間の参照は NonceExpired となる。
const expiredGrace = time.Minute

// consumeScript は値と期限を確認してから削除する。1 は消費成功、0 は失敗。
var consumeScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local entry = cjson.decode(raw)
if tonumber(entry.expires_at_ms) <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 0
end
if entry.value ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// evictScript は期限切れと判定した値がまだ保存されている場合だけ削除する。
// 判定後に再発行されたチャレンジは残す。
var evictScript = redis.NewScript(`
local raw = redis.call("GET", KEYS[1])
if not raw then
  return 0
end
local entry = cjson.decode(raw)
if entry.value ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

type redisEntry struct {
	Value       string `json:"value"`
	IssuedAtMS  int64  `json:"issued_at_ms"`
	ExpiresAtMS int64  `json:"expires_at_ms"`
}

// RedisStore はRedisを使ったチャレンジ保管。複数プロセスで共有できる。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore は接続済みクライアントからRedisStoreを生成する。
func NewRedisStore(client *redis.Client, now func() time.Time) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, ttl: domain.NonceTTL, now: now}, nil
}

func redisKey(subject string, purpose domain.NoncePurpose) string {
	return redisKeyPrefix + storeKey(subject, purpose)
}

// Issue は新しいチャレンジを書き込み、既存の値を置き換える。
func (s *RedisStore) Issue(ctx context.Context, subject string, purpose domain.NoncePurpose) (*domain.Nonce, error) {
	value, err := newToken(purpose)
	if err != nil {
		return nil, err
	}

	now := s.now()
	n := domain.Nonce{
		Subject:   subject,
		Purpose:   purpose,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	raw, err := json.Marshal(redisEntry{
		Value:       n.Value,
		IssuedAtMS:  n.IssuedAt.UnixMilli(),
		ExpiresAtMS: n.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding challenge: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(subject, purpose), raw, s.ttl+expiredGrace).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to store challenge",
			"operation", "nonce_issue",
			"purpose", string(purpose),
			"error", err,
		)
		return nil, fmt.Errorf("storing challenge: %w", err)
	}
	return &n, nil
}

// Peek は保存されたチャレンジを参照する。
func (s *RedisStore) Peek(ctx context.Context, subject string, purpose domain.NoncePurpose) (domain.NonceLookup, error) {
	key := redisKey(subject, purpose)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NonceLookup{State: domain.NonceNotFound}, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to read challenge",
			"operation", "nonce_peek",
			"purpose", string(purpose),
			"error", err,
		)
		return domain.NonceLookup{}, fmt.Errorf("reading challenge: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.NonceLookup{}, fmt.Errorf("decoding challenge: %w", err)
	}
	n := domain.Nonce{
		Subject:   subject,
		Purpose:   purpose,
		Value:     entry.Value,
		IssuedAt:  time.UnixMilli(entry.IssuedAtMS),
		ExpiresAt: time.UnixMilli(entry.ExpiresAtMS),
	}
	if !n.UsableAt(s.now()) {
		if err := evictScript.Run(ctx, s.client, []string{key}, entry.Value).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to evict expired challenge",
				"operation", "nonce_peek",
				"purpose", string(purpose),
				"error", err,
			)
			return domain.NonceLookup{}, fmt.Errorf("evicting challenge: %w", err)
		}
		return domain.NonceLookup{State: domain.NonceExpired}, nil
	}
	return domain.NonceLookup{State: domain.NonceFound, Nonce: &n}, nil
}

// Consume は値が一致する有効なチャレンジをスクリプトで原子的に削除する。
func (s *RedisStore) Consume(ctx context.Context, subject string, purpose domain.NoncePurpose, value string) (bool, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{redisKey(subject, purpose)}, value, s.now().UnixMilli()).Int64()
	if err != nil {
		slog.ErrorContext(ctx, "failed to consume challenge",
			"operation", "nonce_consume",
			"purpose", string(purpose),
			"error", err,
		)
		return false, fmt.Errorf("consuming challenge: %w", err)
	}
	return res == 1, nil
}
