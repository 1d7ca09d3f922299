// Package uniswap reads price ticks from v3-style pool contracts. It is the
// production implementation of the quote service consumed by the DCA tick
// gate; tests use mocks instead.
package uniswap

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

type pairKey struct {
	base  common.Address
	quote common.Address
}

type Config struct {
	rpcClient *ethclient.Client
	pools     map[pairKey]common.Address
}

func NewConfig(rpcClient *ethclient.Client) *Config {
	return &Config{
		rpcClient: rpcClient,
		pools:     make(map[pairKey]common.Address),
	}
}

// RegisterPool maps an asset pair to its pool contract. Both orderings of
// the pair resolve to the same pool.
func (c *Config) RegisterPool(base, quote, pool common.Address) {
	c.pools[pairKey{base, quote}] = pool
	c.pools[pairKey{quote, base}] = pool
}

func (c *Config) pool(base, quote common.Address) (common.Address, bool) {
	pool, ok := c.pools[pairKey{base, quote}]
	return pool, ok
}
