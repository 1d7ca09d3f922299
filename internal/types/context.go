package types

import "math/big"

// SwapContext carries the diversion computed at prepare time across to the
// matching settle call. At most one context is live per user, and it never
// survives a single prepare/settle pair; the hook deletes it on every exit
// path.
type SwapContext struct {
	// PendingDiversion is the amount withheld at prepare time, before the
	// treasury fee is split off. Must fit in 128 bits so the context packs
	// into one word.
	PendingDiversion *big.Int

	// PercentageBps snapshots the active percentage for this call, so a
	// strategy update between prepare and settle cannot skew the commit.
	PercentageBps uint16

	HasStrategy bool
	RoundUp     bool
	DCAEnabled  bool
	TokenType   SavingsTokenType
}
