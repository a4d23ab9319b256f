package router

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/caz-payments/internal/cache"
	"github.com/caz-payments/internal/http/response"
	"github.com/caz-payments/internal/logger"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"
const idempotencyReplayHeader = "Idempotent-Replayed"
const maxIdempotencyKeyLength = 128

type bodyCaptureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware 按 Idempotency-Key 重放成功响应，并拒绝同一键的并发请求
// 仅缓存业务成功（status_code=0）的响应，失败请求释放占用以便客户端重试
func IdempotencyMiddleware(scope string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
		if key == "" || !cache.Enabled() {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			response.Error(c, response.CodeBadRequest, "idempotency key too long")
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		log := logger.SW("request_id", getRequestID(c), "idempotency_key", key)

		cached, hit, err := cache.GetIdempotentResponse(ctx, scope, key)
		if err != nil {
			log.Warnw("idempotency_lookup_failed", "error", err)
			c.Next()
			return
		}
		if hit {
			replayIdempotentResponse(c, cached)
			return
		}

		reserved, err := cache.ReserveIdempotencyKey(ctx, scope, key)
		if err != nil {
			log.Warnw("idempotency_reserve_failed", "error", err)
			c.Next()
			return
		}
		if !reserved {
			response.Error(c, response.CodeConflict, "request with this idempotency key is in progress")
			c.Abort()
			return
		}

		// 首次查询与占用之间，前一个请求可能已保存结果并释放占用
		cached, hit, err = cache.GetIdempotentResponse(ctx, scope, key)
		if err != nil {
			log.Warnw("idempotency_lookup_failed", "error", err)
		}
		if hit {
			if err := cache.ReleaseIdempotencyKey(context.WithoutCancel(ctx), scope, key); err != nil {
				log.Warnw("idempotency_release_failed", "error", err)
			}
			replayIdempotentResponse(c, cached)
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		// 请求可能已被客户端取消，结果仍需落盘
		storeCtx := context.WithoutCancel(ctx)
		if !isSuccessEnvelope(writer.body.Bytes()) {
			if err := cache.ReleaseIdempotencyKey(storeCtx, scope, key); err != nil {
				log.Warnw("idempotency_release_failed", "error", err)
			}
			return
		}
		err = cache.SaveIdempotentResponse(storeCtx, scope, key, &cache.IdempotentResponse{
			StatusCode:  writer.Status(),
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		}, ttl)
		if err != nil {
			log.Warnw("idempotency_save_failed", "error", err)
		}
	}
}

func replayIdempotentResponse(c *gin.Context, cached *cache.IdempotentResponse) {
	c.Header(idempotencyReplayHeader, "true")
	c.Data(cached.StatusCode, cached.ContentType, cached.Body)
	c.Abort()
}

func isSuccessEnvelope(body []byte) bool {
	var envelope struct {
		StatusCode *int `json:"status_code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.StatusCode == nil {
		return false
	}
	return *envelope.StatusCode == response.CodeOK
}
