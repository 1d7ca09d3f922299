// Package codec packs user configuration and the transient swap context into
// single 256-bit words so the ledger reads and writes a small, fixed number
// of slots per call.
//
// Bit layout is a contract shared with the storage backends:
//
//	UserConfig word
//	  bits   0-13  percentage (bps)
//	  bits  14-27  auto-increment step (bps)
//	  bits  28-41  max percentage (bps)
//	  bit   42     round-up flag
//	  bit   43     DCA-enabled flag
//	  bits  44-45  savings token type
//	  bits  46-255 reserved, zero
//
//	SwapContext word
//	  bits   0-127 pending diversion amount
//	  bits 128-141 active percentage snapshot (bps)
//	  bit  142     strategy-active flag
//	  bit  143     round-up flag
//	  bit  144     DCA-enabled flag
//	  bits 145-146 savings token type
//	  bits 147-255 reserved, zero
//
// Pack functions are total: every field is masked to its declared width, so
// no input can panic. Callers range-check values before packing; a value
// wider than its field is truncated, never rejected here.
package codec

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/spendsave/savings-engine/internal/types"
)

const (
	bpsBits = 14
	bpsMask = (1 << bpsBits) - 1

	cfgAutoIncShift  = 14
	cfgMaxPctShift   = 28
	cfgRoundUpBit    = 42
	cfgDCABit        = 43
	cfgTokenShift    = 44
	tokenTypeMask    = 0x3

	// SwapContext meta lives in the third 64-bit limb, i.e. word bits
	// 128 and up.
	ctxPctMask     = bpsMask
	ctxStrategyBit = 14
	ctxRoundUpBit  = 15
	ctxDCABit      = 16
	ctxTokenShift  = 17
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// FitsDiversion reports whether the amount fits the 128-bit diversion field.
func FitsDiversion(amount *big.Int) bool {
	return amount != nil && amount.Sign() >= 0 && amount.BitLen() <= 128
}

// PackUserConfig encodes cfg into a single word.
func PackUserConfig(cfg types.UserConfig) uint256.Int {
	var w uint64
	w |= uint64(cfg.PercentageBps) & bpsMask
	w |= (uint64(cfg.AutoIncrementBps) & bpsMask) << cfgAutoIncShift
	w |= (uint64(cfg.MaxPercentageBps) & bpsMask) << cfgMaxPctShift
	if cfg.RoundUp {
		w |= 1 << cfgRoundUpBit
	}
	if cfg.DCAEnabled {
		w |= 1 << cfgDCABit
	}
	w |= (uint64(cfg.TokenType) & tokenTypeMask) << cfgTokenShift

	var word uint256.Int
	word.SetUint64(w)
	return word
}

// UnpackUserConfig decodes a word produced by PackUserConfig.
func UnpackUserConfig(word uint256.Int) types.UserConfig {
	w := word.Uint64()
	return types.UserConfig{
		PercentageBps:    uint16(w & bpsMask),
		AutoIncrementBps: uint16((w >> cfgAutoIncShift) & bpsMask),
		MaxPercentageBps: uint16((w >> cfgMaxPctShift) & bpsMask),
		RoundUp:          w&(1<<cfgRoundUpBit) != 0,
		DCAEnabled:       w&(1<<cfgDCABit) != 0,
		TokenType:        types.SavingsTokenType((w >> cfgTokenShift) & tokenTypeMask),
	}
}

// PackSwapContext encodes ctx into a single word. The pending diversion is
// truncated to 128 bits; callers check FitsDiversion first.
func PackSwapContext(ctx types.SwapContext) uint256.Int {
	pending := ctx.PendingDiversion
	if pending == nil {
		pending = new(big.Int)
	}
	clipped := new(big.Int).And(pending, maxUint128)
	amt, _ := uint256.FromBig(clipped)

	var meta uint64
	meta |= uint64(ctx.PercentageBps) & ctxPctMask
	if ctx.HasStrategy {
		meta |= 1 << ctxStrategyBit
	}
	if ctx.RoundUp {
		meta |= 1 << ctxRoundUpBit
	}
	if ctx.DCAEnabled {
		meta |= 1 << ctxDCABit
	}
	meta |= (uint64(ctx.TokenType) & tokenTypeMask) << ctxTokenShift

	var word uint256.Int
	word[0] = amt[0]
	word[1] = amt[1]
	word[2] = meta
	return word
}

// UnpackSwapContext decodes a word produced by PackSwapContext.
func UnpackSwapContext(word uint256.Int) types.SwapContext {
	var amt uint256.Int
	amt[0] = word[0]
	amt[1] = word[1]

	meta := word[2]
	return types.SwapContext{
		PendingDiversion: amt.ToBig(),
		PercentageBps:    uint16(meta & ctxPctMask),
		HasStrategy:      meta&(1<<ctxStrategyBit) != 0,
		RoundUp:          meta&(1<<ctxRoundUpBit) != 0,
		DCAEnabled:       meta&(1<<ctxDCABit) != 0,
		TokenType:        types.SavingsTokenType((meta >> ctxTokenShift) & tokenTypeMask),
	}
}
