package dca

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	tickBase       = decimal.NewFromFloat(1.0001)
	bpsDenominator = decimal.NewFromInt(10_000)
)

// TickToPrice converts a discretized tick into a price ratio, 1.0001^tick.
func TickToPrice(tick int32) decimal.Decimal {
	if tick >= 0 {
		return tickBase.Pow(decimal.NewFromInt32(tick))
	}
	return decimal.NewFromInt(1).Div(tickBase.Pow(decimal.NewFromInt32(-tick)))
}

// ExpectedOut estimates the output of converting amountIn at the given tick,
// rounded down.
func ExpectedOut(amountIn *big.Int, tick int32) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	in := decimal.NewFromBigInt(amountIn, 0)
	return in.Mul(TickToPrice(tick)).Floor().BigInt()
}

// MinOut applies a slippage tolerance to an expected output amount:
// expected * (10000 - slippageBps) / 10000, rounded down.
func MinOut(expected *big.Int, slippageBps uint16) *big.Int {
	if expected == nil || expected.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippageBps >= 10_000 {
		return big.NewInt(0)
	}

	exp := decimal.NewFromBigInt(expected, 0)
	keep := decimal.NewFromInt(int64(10_000 - slippageBps))
	return exp.Mul(keep).Div(bpsDenominator).Floor().BigInt()
}
