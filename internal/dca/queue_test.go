package dca

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage/memory"
	"github.com/spendsave/savings-engine/test/mocks/quote"
)

var (
	owner  = common.HexToAddress("0x01")
	hook   = common.HexToAddress("0x02")
	user   = common.HexToAddress("0x10")
	tokenA = common.HexToAddress("0xa0")
	tokenB = common.HexToAddress("0xb0")
)

func newTestQueue(t *testing.T, quotes QuoteService) (*Queue, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.New(ctx, memory.NewBackend(), logrus.New())
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, owner, hook, types.DefaultTreasuryFeeBps))
	return NewQueue(l, hook, quotes, logrus.New()), l
}

func sampleOrder(amount int64, deadline time.Time) types.DCAOrder {
	return types.DCAOrder{
		SourceAsset: tokenA,
		TargetAsset: tokenB,
		Amount:      big.NewInt(amount),
		Deadline:    deadline,
	}
}

func TestEnqueueValidation(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	testCases := []struct {
		name    string
		order   types.DCAOrder
		wantErr bool
	}{
		{name: "Valid order", order: sampleOrder(100, future)},
		{name: "Zero amount", order: sampleOrder(0, future), wantErr: true},
		{name: "Past deadline", order: sampleOrder(100, time.Now().Add(-time.Minute)), wantErr: true},
		{
			name: "Same source and target",
			order: types.DCAOrder{
				SourceAsset: tokenA,
				TargetAsset: tokenA,
				Amount:      big.NewInt(100),
				Deadline:    future,
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, _ := newTestQueue(t, nil)
			err := q.Enqueue(ctx, user, tc.order)
			if tc.wantErr {
				require.ErrorIs(t, err, types.ErrInvalidInput)
				return
			}
			require.NoError(t, err)

			pending, err := q.PendingOrders(ctx, user)
			require.NoError(t, err)
			require.Len(t, pending, 1)
		})
	}
}

func TestEnqueueCapturesCurrentTick(t *testing.T) {
	ctx := context.Background()
	quotes := &quote.MockQuoteService{}
	quotes.On("CurrentTick", ctx, tokenA, tokenB).Return(int32(120), nil)

	q, l := newTestQueue(t, quotes)
	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(100, time.Now().Add(time.Hour))))

	orders, err := l.DCAOrders(ctx, user)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int32(120), orders[0].ExecutionTick)
	require.False(t, orders[0].CreatedAt.IsZero())
	quotes.AssertExpectations(t)
}

func TestMarkExecutedIdempotent(t *testing.T) {
	ctx := context.Background()
	q, l := newTestQueue(t, nil)
	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(100, time.Now().Add(time.Hour))))

	require.NoError(t, q.MarkExecuted(ctx, user, 0))
	ordersAfterFirst, err := l.DCAOrders(ctx, user)
	require.NoError(t, err)

	require.NoError(t, q.MarkExecuted(ctx, user, 0))
	ordersAfterSecond, err := l.DCAOrders(ctx, user)
	require.NoError(t, err)

	require.Equal(t, ordersAfterFirst, ordersAfterSecond)
	require.True(t, ordersAfterSecond[0].Executed)
}

func TestMarkExecutedOutOfRange(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, nil)
	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(100, time.Now().Add(time.Hour))))

	require.ErrorIs(t, q.MarkExecuted(ctx, user, 5), types.ErrIndexOutOfBounds)
	require.ErrorIs(t, q.MarkExecuted(ctx, user, -1), types.ErrIndexOutOfBounds)
}

func TestPendingOrdersFiltersExecutedAndExpired(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t, nil)

	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(100, time.Now().Add(time.Hour))))
	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(200, time.Now().Add(time.Minute))))
	require.NoError(t, q.Enqueue(ctx, user, sampleOrder(300, time.Now().Add(time.Hour))))
	require.NoError(t, q.MarkExecuted(ctx, user, 0))

	// move the clock past the second order's deadline
	q.now = func() time.Time { return time.Now().Add(30 * time.Minute) }

	pending, err := q.PendingOrders(ctx, user)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, int64(300), pending[0].Amount.Int64())
}

func TestEligibleOrdersTickGate(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name         string
		config       *types.DCAConfig
		enqueueTick  int32
		currentTick  int32
		advanceClock time.Duration
		wantEligible bool
	}{
		{
			name:         "No strategy always eligible",
			enqueueTick:  100,
			currentTick:  100,
			wantEligible: true,
		},
		{
			name:         "Gate open on favorable move",
			config:       &types.DCAConfig{OnlyImprovePrice: true, MinTickImprovement: 10, TickExpiry: time.Hour},
			enqueueTick:  100,
			currentTick:  85,
			wantEligible: true,
		},
		{
			name:         "Gate closed below minimum improvement",
			config:       &types.DCAConfig{OnlyImprovePrice: true, MinTickImprovement: 10, TickExpiry: time.Hour},
			enqueueTick:  100,
			currentTick:  95,
			wantEligible: false,
		},
		{
			name:         "Gate closed on unfavorable move",
			config:       &types.DCAConfig{OnlyImprovePrice: true, MinTickImprovement: 10, TickExpiry: time.Hour},
			enqueueTick:  100,
			currentTick:  120,
			wantEligible: false,
		},
		{
			name:         "Expiry forces execution",
			config:       &types.DCAConfig{OnlyImprovePrice: true, MinTickImprovement: 10, TickExpiry: time.Minute},
			enqueueTick:  100,
			currentTick:  120,
			advanceClock: 2 * time.Minute,
			wantEligible: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quotes := &quote.MockQuoteService{}
			quotes.On("CurrentTick", ctx, tokenA, tokenB).Return(tc.enqueueTick, nil).Once()

			q, l := newTestQueue(t, quotes)
			if tc.config != nil {
				require.NoError(t, l.SetDCAConfig(ctx, hook, user, *tc.config))
			}
			require.NoError(t, q.Enqueue(ctx, user, sampleOrder(100, time.Now().Add(24*time.Hour))))

			if tc.advanceClock > 0 {
				base := time.Now()
				q.now = func() time.Time { return base.Add(tc.advanceClock) }
			} else {
				quotes.On("CurrentTick", ctx, tokenA, tokenB).Return(tc.currentTick, nil)
			}

			eligible, err := q.EligibleOrders(ctx, user)
			require.NoError(t, err)
			if tc.wantEligible {
				require.Len(t, eligible, 1)
			} else {
				require.Empty(t, eligible)
			}
		})
	}
}
