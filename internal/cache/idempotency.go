package cache

import (
	"context"
	"fmt"
	"time"
)

const idempotencyPendingTTL = 2 * time.Minute

// IdempotentResponse 幂等请求的响应快照
type IdempotentResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	StoredAt    int64  `json:"stored_at"`
}

func idempotencyResponseKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

func idempotencyPendingKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s:pending", scope, key)
}

// GetIdempotentResponse 读取已保存的响应
func GetIdempotentResponse(ctx context.Context, scope, key string) (*IdempotentResponse, bool, error) {
	var resp IdempotentResponse
	hit, err := GetJSON(ctx, idempotencyResponseKey(scope, key), &resp)
	if err != nil || !hit {
		return nil, false, err
	}
	return &resp, true, nil
}

// ReserveIdempotencyKey 占用幂等键，同一键并发请求只有一个能通过
func ReserveIdempotencyKey(ctx context.Context, scope, key string) (bool, error) {
	client := Client()
	if client == nil {
		return true, nil
	}
	return client.SetNX(ctx, BuildKey(idempotencyPendingKey(scope, key)), 1, idempotencyPendingTTL).Result()
}

// SaveIdempotentResponse 保存响应并释放占用
func SaveIdempotentResponse(ctx context.Context, scope, key string, resp *IdempotentResponse, ttl time.Duration) error {
	if resp == nil {
		return nil
	}
	if resp.StoredAt == 0 {
		resp.StoredAt = time.Now().Unix()
	}
	if err := SetJSON(ctx, idempotencyResponseKey(scope, key), resp, ttl); err != nil {
		return err
	}
	return ReleaseIdempotencyKey(ctx, scope, key)
}

// ReleaseIdempotencyKey 释放幂等键占用（请求失败时允许重试）
func ReleaseIdempotencyKey(ctx context.Context, scope, key string) error {
	return Del(ctx, idempotencyPendingKey(scope, key))
}
