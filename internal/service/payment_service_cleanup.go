package service

import (
	"context"
	"errors"
)

// DanglingReconcileSummary 悬挂支付扫描结果
type DanglingReconcileSummary struct {
	Checked int
	Updated int
	Failed  int
}

// ReconcileDanglingPayments 对超过最小时长仍未终结的支付逐笔对账，单笔失败不影响其它
func (s *PaymentService) ReconcileDanglingPayments(ctx context.Context) (DanglingReconcileSummary, error) {
	var summary DanglingReconcileSummary
	cutoff := s.now().Add(-s.danglingMinAge)
	payments, err := s.paymentRepo.ListDangling(cutoff, s.danglingBatch)
	if err != nil {
		return summary, err
	}
	log := paymentLogger("cutoff", cutoff, "batch", len(payments))
	for idx := range payments {
		if err := ctx.Err(); err != nil {
			log.Warnw("dangling_reconcile_interrupted", "checked", summary.Checked, "error", err)
			return summary, err
		}
		payment := &payments[idx]
		summary.Checked++
		before := payment.Version
		if _, err := s.ReconcilePayment(ctx, payment); err != nil {
			summary.Failed++
			if errors.Is(err, ErrCredentialNotConfigured) {
				log.Errorw("dangling_reconcile_credential_missing", "payment_id", payment.ID, "clean_air_zone_id", payment.CleanAirZoneID, "error", err)
			} else {
				log.Warnw("dangling_reconcile_failed", "payment_id", payment.ID, "error", err)
			}
			continue
		}
		if payment.Version != before {
			summary.Updated++
		}
	}
	log.Infow("dangling_reconcile_done", "checked", summary.Checked, "updated", summary.Updated, "failed", summary.Failed)
	return summary, nil
}
