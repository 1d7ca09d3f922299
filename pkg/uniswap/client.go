package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/savings-engine/internal/dca"
)

type Client struct {
	cfg     *Config
	poolABI abi.ABI
}

func NewClient(cfg *Config) (*Client, error) {
	poolABI, err := getPoolABI()
	if err != nil {
		return nil, fmt.Errorf("fail to parse pool abi: %w", err)
	}
	return &Client{cfg: cfg, poolABI: poolABI}, nil
}

// CurrentTick reads slot0 from the pair's pool contract and returns the
// current price tick.
func (c *Client) CurrentTick(ctx context.Context, base, quote common.Address) (int32, error) {
	pool, ok := c.cfg.pool(base, quote)
	if !ok {
		return 0, fmt.Errorf("no pool registered for pair %s/%s", base.Hex(), quote.Hex())
	}

	data, err := c.poolABI.Pack("slot0")
	if err != nil {
		return 0, fmt.Errorf("fail to pack slot0 call: %w", err)
	}

	raw, err := c.cfg.rpcClient.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("fail to call slot0: %w", err)
	}

	values, err := c.poolABI.Unpack("slot0", raw)
	if err != nil {
		return 0, fmt.Errorf("fail to unpack slot0: %w", err)
	}
	if len(values) < 2 {
		return 0, fmt.Errorf("unexpected slot0 result length %d", len(values))
	}
	tick, ok := values[1].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected slot0 tick type %T", values[1])
	}
	return int32(tick.Int64()), nil
}

// ExpectedOut estimates the output for amountIn at the current tick. The
// estimate feeds slippage bounds, not settlement.
func (c *Client) ExpectedOut(ctx context.Context, base, quote common.Address, amountIn *big.Int) (*big.Int, error) {
	tick, err := c.CurrentTick(ctx, base, quote)
	if err != nil {
		return nil, err
	}
	return dca.ExpectedOut(amountIn, tick), nil
}

func getPoolABI() (abi.ABI, error) {
	poolABI := `[
        {
            "name": "slot0",
            "type": "function",
            "stateMutability": "view",
            "inputs": [],
            "outputs": [
                {
                    "name": "sqrtPriceX96",
                    "type": "uint160"
                },
                {
                    "name": "tick",
                    "type": "int24"
                }
            ]
        }
    ]`
	return abi.JSON(strings.NewReader(poolABI))
}
