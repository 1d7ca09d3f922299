package transfer

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type MockTransferService struct {
	mock.Mock
}

func (m *MockTransferService) TransferFrom(ctx context.Context, owner, recipient, asset gcommon.Address, amount *big.Int) error {
	args := m.Called(ctx, owner, recipient, asset, amount)
	return args.Error(0)
}

func (m *MockTransferService) Available(ctx context.Context, owner, asset gcommon.Address) (*big.Int, error) {
	args := m.Called(ctx, owner, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}
