package notify

import (
	"context"
	"time"

	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/metrics"
	"github.com/caz-payments/internal/repository"

	"gorm.io/gorm"
)

// Relay 发件箱投递器：读取待发送消息，发布成功后标记 SENT
type Relay struct {
	db          *gorm.DB
	repo        repository.OutboxRepository
	publisher   Publisher
	batchSize   int
	maxAttempts int
}

// NewRelay 创建发件箱投递器
func NewRelay(db *gorm.DB, repo repository.OutboxRepository, publisher Publisher, batchSize, maxAttempts int) *Relay {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Relay{
		db:          db,
		repo:        repo,
		publisher:   publisher,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// RelayResult 单轮投递结果
type RelayResult struct {
	Sent   int
	Failed int
}

// RunOnce 投递一批消息；在事务内锁定消息行，多实例不会重复领取
func (r *Relay) RunOnce(ctx context.Context) (RelayResult, error) {
	var result RelayResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		messages, err := repo.ListPending(r.batchSize)
		if err != nil {
			return err
		}
		metrics.SetOutboxBacklog(len(messages))
		for _, message := range messages {
			if err := ctx.Err(); err != nil {
				return nil
			}
			publishErr := r.publisher.Publish(ctx, message.Topic, message.Key, []byte(message.Payload))
			if publishErr != nil {
				result.Failed++
				metrics.IncOutboxDelivery("error")
				logger.Warnw("outbox_publish_failed",
					"outbox_id", message.ID,
					"aggregate_id", message.AggregateID,
					"attempts", message.Attempts+1,
					"error", publishErr,
				)
				if err := repo.MarkAttemptFailed(message.ID, publishErr.Error(), r.maxAttempts); err != nil {
					return err
				}
				continue
			}
			if err := repo.MarkSent(message.ID, time.Now()); err != nil {
				return err
			}
			result.Sent++
			metrics.IncOutboxDelivery("sent")
		}
		return nil
	})
	if err != nil {
		logger.Errorw("outbox_relay_failed", "error", err)
		return result, err
	}
	if result.Sent > 0 || result.Failed > 0 {
		logger.Infow("outbox_relay_done", "sent", result.Sent, "failed", result.Failed)
	}
	return result, nil
}
