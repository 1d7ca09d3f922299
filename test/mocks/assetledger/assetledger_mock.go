package assetledger

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type MockAssetLedger struct {
	mock.Mock
}

func (m *MockAssetLedger) RegisterAsset(ctx context.Context, asset gcommon.Address) (uint64, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockAssetLedger) Mint(ctx context.Context, user gcommon.Address, assetID uint64, amount *big.Int) error {
	args := m.Called(ctx, user, assetID, amount)
	return args.Error(0)
}

func (m *MockAssetLedger) Burn(ctx context.Context, user gcommon.Address, assetID uint64, amount *big.Int) error {
	args := m.Called(ctx, user, assetID, amount)
	return args.Error(0)
}

func (m *MockAssetLedger) BalanceOf(ctx context.Context, user gcommon.Address, assetID uint64) (*big.Int, error) {
	args := m.Called(ctx, user, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}
