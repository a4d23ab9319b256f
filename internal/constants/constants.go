package constants

// 内部支付状态常量
const (
	InternalStatusNotPaid    = "NOT_PAID"
	InternalStatusInitiated  = "INITIATED"
	InternalStatusPaid       = "PAID"
	InternalStatusFailed     = "FAILED"
	InternalStatusCancelled  = "CANCELLED"
	InternalStatusChargeback = "CHARGEBACK"
	InternalStatusRefunded   = "REFUNDED"
)

// 外部支付状态常量（网关原始状态归一后的枚举）
const (
	ExternalStatusCreated       = "CREATED"
	ExternalStatusStarted       = "STARTED"
	ExternalStatusSubmitted     = "SUBMITTED"
	ExternalStatusCaptured      = "CAPTURED"
	ExternalStatusSuccess       = "SUCCESS"
	ExternalStatusFailed        = "FAILED"
	ExternalStatusCancelled     = "CANCELLED"
	ExternalStatusError         = "ERROR"
	ExternalStatusUserCancel3DS = "USER_CANCEL_3DS"
)

// 支付方式常量
const (
	PaymentMethodCard        = "CREDIT_DEBIT_CARD"
	PaymentMethodDirectDebit = "DIRECT_DEBIT"
)

// 直接借记授权状态常量
const (
	MandateStatusPendingCustomerApproval = "PENDING_CUSTOMER_APPROVAL"
	MandateStatusPendingSubmission       = "PENDING_SUBMISSION"
	MandateStatusSubmitted               = "SUBMITTED"
	MandateStatusActive                  = "ACTIVE"
	MandateStatusFailed                  = "FAILED"
	MandateStatusCancelled               = "CANCELLED"
	MandateStatusExpired                 = "EXPIRED"
)

// 车辆入区明细状态修改来源
const (
	UpdateActorUser = "USER"
	UpdateActorLA   = "LA"
)

// 发件箱消息状态常量
const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 余数分摊策略
const (
	RemainderPolicyTruncate   = "truncate"
	RemainderPolicyDistribute = "distribute"
)

// 异步任务类型
const (
	TaskPaymentReconcile = "payment:reconcile"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 支付描述文案
const (
	PaymentDescription = "Driving in a Clean Air Zone charge"
	MandateDescription = "Drive in a Clean Air Zone charge"
)

// FinishedExternalStatuses 网关侧已终结、无需再对账的外部状态
func FinishedExternalStatuses() []string {
	return []string{
		ExternalStatusSuccess,
		ExternalStatusFailed,
		ExternalStatusCancelled,
		ExternalStatusError,
	}
}

// IsFinishedExternalStatus 外部状态是否已终结
func IsFinishedExternalStatus(status string) bool {
	for _, finished := range FinishedExternalStatuses() {
		if status == finished {
			return true
		}
	}
	return false
}
