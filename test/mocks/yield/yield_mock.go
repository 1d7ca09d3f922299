package yield

import (
	"context"
	"math/big"

	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
)

type MockYieldStrategy struct {
	mock.Mock
}

func (m *MockYieldStrategy) Apply(ctx context.Context, user, asset gcommon.Address, amount *big.Int) error {
	args := m.Called(ctx, user, asset, amount)
	return args.Error(0)
}
