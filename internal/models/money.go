package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money 英镑金额（保留 2 位小数），库内金额统一以便士整数存储
type Money struct {
	decimal.Decimal
}

// NewMoneyFromPennies 由便士整数构造金额
func NewMoneyFromPennies(pennies int) Money {
	return Money{Decimal: decimal.NewFromInt(int64(pennies)).Shift(-2)}
}

// Pennies 转回便士整数
func (m Money) Pennies() int {
	return int(m.Decimal.Shift(2).IntPart())
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

// Pounds 返回带英镑符号的金额，例如 £12.50
func (m Money) Pounds() string {
	return "£" + m.StringFixed(2)
}
