package worker

import (
	"context"
	"errors"

	"github.com/caz-payments/internal/logger"
	"github.com/caz-payments/internal/provider"
	"github.com/caz-payments/internal/queue"
	"github.com/caz-payments/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentReconcile, c.handlePaymentReconcile)
}

func (c *Consumer) handlePaymentReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePaymentReconcilePayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_payment_reconcile_invalid_payload", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_payment_reconcile_skip_service_nil", "payment_id", payload.PaymentID)
		return nil
	}
	_, err = c.PaymentService.Reconcile(ctx, payload.PaymentID)
	return classifyReconcileError(payload, err)
}

// classifyReconcileError 决定任务是否重试：状态冲突和网关失败可重试，其余直接结束
func classifyReconcileError(payload queue.PaymentReconcilePayload, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, service.ErrPaymentNotFound), errors.Is(err, service.ErrPaymentNotSubmitted):
		logger.Debugw("worker_payment_reconcile_skip", "payment_id", payload.PaymentID, "source", payload.Source, "reason", err.Error())
		return nil
	case errors.Is(err, service.ErrPaymentStateConflict),
		errors.Is(err, service.ErrGatewayRequestFailed),
		errors.Is(err, service.ErrGatewayResponseInvalid):
		logger.Warnw("worker_payment_reconcile_retry", "payment_id", payload.PaymentID, "source", payload.Source, "error", err)
		return err
	default:
		logger.Errorw("worker_payment_reconcile_failed", "payment_id", payload.PaymentID, "source", payload.Source, "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}
}
