package services

import (
	"math"

	"github.com/shopspring/decimal"
)

// Low enough that NewFromFloatWithExponent keeps every binary digit of v.
const exactExponent = -1100

// roundMoney rounds the exact binary value of v to cents, ties to even, so
// 2.675 (stored as 2.67499...) becomes 2.67 and 0.125 becomes 0.12.
func roundMoney(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloatWithExponent(v, exactExponent).RoundBank(2).InexactFloat64()
}
