package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/caz-payments/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrCredentialNotConfigured 收费区未配置网关密钥，属于配置错误
var ErrCredentialNotConfigured = errors.New("gateway credential not configured")

const invalidateAll = "*"

// Kind 密钥类型
type Kind string

const (
	KindCard        Kind = "card"
	KindDirectDebit Kind = "direct_debit"
)

// Source 密钥来源
type Source interface {
	Lookup(ctx context.Context, kind Kind, zoneKey string) (string, error)
}

// NormalizeZoneKey 收费区密钥键：去掉连字符的小写 UUID
func NormalizeZoneKey(zoneID uuid.UUID) string {
	return strings.ReplaceAll(zoneID.String(), "-", "")
}

type cacheKey struct {
	kind    Kind
	zoneKey string
}

// Store 按收费区缓存网关密钥，支持显式失效
type Store struct {
	source Source

	mu      sync.RWMutex
	entries map[cacheKey]string
}

// NewStore 创建密钥缓存
func NewStore(source Source) *Store {
	return &Store{
		source:  source,
		entries: make(map[cacheKey]string),
	}
}

// APIKey 获取收费区的网关密钥
func (s *Store) APIKey(ctx context.Context, kind Kind, zoneID uuid.UUID) (string, error) {
	if zoneID == uuid.Nil {
		return "", fmt.Errorf("%w: zone id is empty", ErrCredentialNotConfigured)
	}
	key := cacheKey{kind: kind, zoneKey: NormalizeZoneKey(zoneID)}

	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return value, nil
	}

	if s.source == nil {
		return "", fmt.Errorf("%w: no credential source", ErrCredentialNotConfigured)
	}
	value, err := s.source.Lookup(ctx, kind, key.zoneKey)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrCredentialNotConfigured, kind, key.zoneKey)
	}

	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	logger.Debugw("credential_cached", "kind", kind, "zone_key", key.zoneKey, "api_key", logger.Mask(value))
	return value, nil
}

// Invalidate 失效单个收费区的密钥
func (s *Store) Invalidate(kind Kind, zoneKey string) {
	s.mu.Lock()
	delete(s.entries, cacheKey{kind: kind, zoneKey: strings.ToLower(strings.TrimSpace(zoneKey))})
	s.mu.Unlock()
}

// InvalidateAll 清空全部缓存
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[cacheKey]string)
	s.mu.Unlock()
}

// Size 当前缓存条目数
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PublishInvalidation 广播密钥失效消息，zoneKey 为空时失效该类型全部密钥
func PublishInvalidation(ctx context.Context, client *redis.Client, channel string, kind Kind, zoneKey string) error {
	if client == nil {
		return errors.New("redis client is nil")
	}
	return client.Publish(ctx, channel, formatInvalidation(kind, zoneKey)).Err()
}

// Listen 订阅失效消息直到 ctx 结束
func (s *Store) Listen(ctx context.Context, client *redis.Client, channel string) {
	if client == nil || strings.TrimSpace(channel) == "" {
		return
	}
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			s.handleInvalidation(msg.Payload)
		}
	}
}

func (s *Store) handleInvalidation(payload string) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == invalidateAll {
		s.InvalidateAll()
		logger.Infow("credential_cache_invalidated", "scope", "all")
		return
	}
	kind, zoneKey, found := strings.Cut(payload, ":")
	if !found || zoneKey == "" || zoneKey == invalidateAll {
		s.invalidateKind(Kind(kind))
		logger.Infow("credential_cache_invalidated", "scope", "kind", "kind", kind)
		return
	}
	s.Invalidate(Kind(kind), zoneKey)
	logger.Infow("credential_cache_invalidated", "scope", "zone", "kind", kind, "zone_key", zoneKey)
}

func (s *Store) invalidateKind(kind Kind) {
	s.mu.Lock()
	for key := range s.entries {
		if key.kind == kind {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

func formatInvalidation(kind Kind, zoneKey string) string {
	zoneKey = strings.TrimSpace(zoneKey)
	if kind == "" {
		return invalidateAll
	}
	if zoneKey == "" {
		return string(kind) + ":" + invalidateAll
	}
	return string(kind) + ":" + strings.ToLower(zoneKey)
}
