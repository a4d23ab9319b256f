package queue

import (
	"encoding/json"
	"fmt"

	"github.com/caz-payments/internal/constants"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentReconcile 单笔支付对账任务
	TaskPaymentReconcile = constants.TaskPaymentReconcile
)

// PaymentReconcilePayload 对账任务载荷
type PaymentReconcilePayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	Source    string    `json:"source"`
}

// NewPaymentReconcileTask 创建对账任务
func NewPaymentReconcileTask(payload PaymentReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReconcile, body), nil
}

// ParsePaymentReconcilePayload 解析对账任务载荷
func ParsePaymentReconcilePayload(body []byte) (PaymentReconcilePayload, error) {
	var payload PaymentReconcilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	if payload.PaymentID == uuid.Nil {
		return payload, fmt.Errorf("payment_id is empty")
	}
	return payload, nil
}
