package types

import "github.com/ethereum/go-ethereum/common"

// ProtocolMeta is the owner-scoped protocol configuration written once at
// initialization and mutated only through owner-gated ledger operations.
type ProtocolMeta struct {
	Owner          common.Address
	Hook           common.Address
	TreasuryFeeBps uint16
}
