package service

import (
	"errors"
	"testing"

	"github.com/caz-payments/internal/constants"
)

func TestCalculateCharge(t *testing.T) {
	cases := []struct {
		total int
		days  int
		want  int
	}{
		{total: 2000, days: 4, want: 500},
		{total: 2400, days: 3, want: 800},
		{total: 1000, days: 3, want: 333},
		{total: 800, days: 1, want: 800},
	}
	for _, tc := range cases {
		got, err := CalculateCharge(tc.total, tc.days)
		if err != nil {
			t.Fatalf("calculate %d/%d failed: %v", tc.total, tc.days, err)
		}
		if got != tc.want {
			t.Fatalf("calculate %d/%d: want %d got %d", tc.total, tc.days, tc.want, got)
		}
	}
}

func TestCalculateChargeRejectsInvalidInput(t *testing.T) {
	if _, err := CalculateCharge(1000, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero days should be a validation error, got %v", err)
	}
	if _, err := CalculateCharge(0, 2); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero amount should be a validation error, got %v", err)
	}
}

func TestDistributeChargeTruncateDropsRemainder(t *testing.T) {
	charges, err := DistributeCharge(1000, 3, constants.RemainderPolicyTruncate)
	if err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	sum := 0
	for _, charge := range charges {
		if charge != 333 {
			t.Fatalf("truncate should charge 333 per day, got %v", charges)
		}
		sum += charge
	}
	if sum != 999 {
		t.Fatalf("truncated total want 999 got %d", sum)
	}
}

func TestDistributeChargeSpreadsRemainder(t *testing.T) {
	charges, err := DistributeCharge(1001, 3, constants.RemainderPolicyDistribute)
	if err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	want := []int{334, 334, 333}
	for idx := range want {
		if charges[idx] != want[idx] {
			t.Fatalf("want %v got %v", want, charges)
		}
	}
}

func TestDistributeChargeRejectsZeroDailyCharge(t *testing.T) {
	if _, err := DistributeCharge(2, 3, constants.RemainderPolicyDistribute); !errors.Is(err, ErrValidation) {
		t.Fatalf("amount below day count should fail, got %v", err)
	}
}
