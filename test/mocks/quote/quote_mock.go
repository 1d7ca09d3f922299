package quote

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type MockQuoteService struct {
	mock.Mock
}

func (m *MockQuoteService) CurrentTick(ctx context.Context, base, quote gcommon.Address) (int32, error) {
	args := m.Called(ctx, base, quote)
	return args.Get(0).(int32), args.Error(1)
}

func (m *MockQuoteService) ExpectedOut(ctx context.Context, base, quote gcommon.Address, amountIn *big.Int) (*big.Int, error) {
	args := m.Called(ctx, base, quote, amountIn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}
