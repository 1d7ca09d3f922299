package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DCAOrder is one pending conversion of saved funds into the target asset.
// Orders are appended per user and marked executed in place; the slice index
// is the order's stable handle.
type DCAOrder struct {
	ID           uuid.UUID
	SourceAsset  common.Address
	TargetAsset  common.Address
	Amount       *big.Int
	// ExecutionTick is the price tick observed at enqueue time; the tick
	// strategy gates execution on movement relative to it.
	ExecutionTick int32
	Deadline      time.Time
	CreatedAt     time.Time
	Executed      bool
	SlippageBps   uint16
}

// Copy returns a deep copy of the order.
func (o DCAOrder) Copy() DCAOrder {
	clone := o
	if o.Amount != nil {
		clone.Amount = new(big.Int).Set(o.Amount)
	}
	return clone
}

// DCAConfig is a user's deferred-conversion configuration: where diverted
// savings convert to, and the tick strategy gating when pending orders
// become eligible.
type DCAConfig struct {
	TargetAsset common.Address
	SlippageBps uint16
	// OrderTTL sets each order's deadline relative to its enqueue time.
	OrderTTL time.Duration

	// OnlyImprovePrice requires the current tick to have moved favorably
	// by at least MinTickImprovement since enqueue.
	OnlyImprovePrice   bool
	MinTickImprovement int32
	// TickExpiry forces execution once this much time has elapsed since
	// enqueue, regardless of price, so orders cannot starve.
	TickExpiry time.Duration
}
