package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ConfigSource 从配置文件读取密钥
type ConfigSource struct {
	keys map[Kind]map[string]string
}

// NewConfigSource 创建配置密钥来源，键统一为去连字符的小写 UUID
func NewConfigSource(card, directDebit map[string]string) *ConfigSource {
	return &ConfigSource{
		keys: map[Kind]map[string]string{
			KindCard:        normalizeKeys(card),
			KindDirectDebit: normalizeKeys(directDebit),
		},
	}
}

// Lookup 查询密钥
func (s *ConfigSource) Lookup(_ context.Context, kind Kind, zoneKey string) (string, error) {
	value, ok := s.keys[kind][zoneKey]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s/%s", ErrCredentialNotConfigured, kind, zoneKey)
	}
	return value, nil
}

// RedisSource 从 Redis Hash 读取密钥，每种类型一个 Hash
type RedisSource struct {
	client *redis.Client
	prefix string
}

// NewRedisSource 创建 Redis 密钥来源
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	return &RedisSource{client: client, prefix: strings.TrimSpace(prefix)}
}

// HashKey 密钥所在 Hash 的键名
func (s *RedisSource) HashKey(kind Kind) string {
	if s.prefix == "" {
		return string(kind)
	}
	return s.prefix + ":" + string(kind)
}

// Lookup 查询密钥
func (s *RedisSource) Lookup(ctx context.Context, kind Kind, zoneKey string) (string, error) {
	if s.client == nil {
		return "", errors.New("redis client is nil")
	}
	value, err := s.client.HGet(ctx, s.HashKey(kind), zoneKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s/%s", ErrCredentialNotConfigured, kind, zoneKey)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func normalizeKeys(raw map[string]string) map[string]string {
	normalized := make(map[string]string, len(raw))
	for key, value := range raw {
		key = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "-", ""))
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(value)
	}
	return normalized
}
