package service

import (
	"github.com/caz-payments/internal/constants"
	"github.com/caz-payments/internal/logger"
)

// CalculateCharge 按天数平分总金额，整数除法，余数由调用方按策略处理
func CalculateCharge(totalAmount, numberOfDays int) (int, error) {
	if numberOfDays <= 0 {
		return 0, validationError("number of days must be positive")
	}
	if totalAmount <= 0 {
		return 0, validationError("amount must be positive")
	}
	return totalAmount / numberOfDays, nil
}

// DistributeCharge 生成每天的收费金额
// truncate: 每天均为 total/days，余数丢弃；distribute: 余数逐一分摊到前几天
func DistributeCharge(totalAmount, numberOfDays int, policy string) ([]int, error) {
	perDay, err := CalculateCharge(totalAmount, numberOfDays)
	if err != nil {
		return nil, err
	}
	if perDay == 0 {
		return nil, validationError("amount %d is smaller than the number of days %d", totalAmount, numberOfDays)
	}
	remainder := totalAmount % numberOfDays
	charges := make([]int, numberOfDays)
	for idx := range charges {
		charges[idx] = perDay
	}
	if remainder == 0 {
		return charges, nil
	}
	if policy == constants.RemainderPolicyDistribute {
		for idx := 0; idx < remainder; idx++ {
			charges[idx]++
		}
		return charges, nil
	}
	logger.Warnw("charge_remainder_dropped",
		"total_amount", totalAmount,
		"number_of_days", numberOfDays,
		"per_day_charge", perDay,
		"remainder", remainder,
	)
	return charges, nil
}
