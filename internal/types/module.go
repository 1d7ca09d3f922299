package types

import "github.com/ethereum/go-ethereum/common"

// ModuleID identifies a logic unit in the module registry. Registration maps
// the id to the caller address authorized to act as that module.
type ModuleID string

const (
	ModuleStrategy ModuleID = "strategy"
	ModuleSavings  ModuleID = "savings"
	ModuleDCA      ModuleID = "dca"
	ModuleDaily    ModuleID = "daily"
	ModuleYield    ModuleID = "yield"
	ModuleSlippage ModuleID = "slippage"
)

// ModuleEntry is one registry row.
type ModuleEntry struct {
	ID     ModuleID
	Caller common.Address
}
