package daily

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage"
	"github.com/spendsave/savings-engine/storage/memory"
	"github.com/spendsave/savings-engine/test/mocks/assetledger"
	"github.com/spendsave/savings-engine/test/mocks/transfer"
	"github.com/spendsave/savings-engine/test/mocks/yield"
)

var (
	owner    = common.HexToAddress("0x01")
	hookAddr = common.HexToAddress("0x02")
	vault    = common.HexToAddress("0x03")
	user     = common.HexToAddress("0x10")
	tokenA   = common.HexToAddress("0xa0")
)

func newTestProcessor(t *testing.T, transfers TransferService, shares AssetLedger, yieldStrategy YieldStrategy) (*Processor, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()

	l, err := ledger.New(ctx, memory.NewBackend(), logger)
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, owner, hookAddr, types.DefaultTreasuryFeeBps))

	p := NewProcessor(l, hookAddr, vault, transfers, shares, yieldStrategy, nil, 5, 10, logger)
	p.itemCost = func(time.Time) uint64 { return 10 }
	return p, l
}

func activePlan(daily, goal, current int64, lastExecution time.Time) types.DailyContributionPlan {
	return types.DailyContributionPlan{
		Enabled:       true,
		DailyAmount:   big.NewInt(daily),
		GoalAmount:    big.NewInt(goal),
		CurrentAmount: big.NewInt(current),
		LastExecution: lastExecution,
	}
}

func TestExecuteOneSkipReasons(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	testCases := []struct {
		name     string
		plan     types.DailyContributionPlan
		funds    int64
		wantSkip types.SkipReason
	}{
		{
			name: "Disabled plan",
			plan: types.DailyContributionPlan{
				Enabled:       false,
				DailyAmount:   big.NewInt(100),
				GoalAmount:    big.NewInt(0),
				CurrentAmount: big.NewInt(0),
			},
			wantSkip: types.SkipDisabled,
		},
		{
			name: "Plan past end time",
			plan: func() types.DailyContributionPlan {
				p := activePlan(100, 0, 0, now.Add(-2*types.OneDay))
				p.EndTime = now.Add(-time.Hour)
				return p
			}(),
			wantSkip: types.SkipPlanEnded,
		},
		{
			name:     "Goal already reached",
			plan:     activePlan(100, 250, 250, now.Add(-2*types.OneDay)),
			wantSkip: types.SkipGoalReached,
		},
		{
			name:     "No elapsed days",
			plan:     activePlan(100, 0, 0, now.Add(-time.Hour)),
			wantSkip: types.SkipNoElapsedDays,
		},
		{
			name:     "Insufficient external funds",
			plan:     activePlan(100, 0, 0, now.Add(-types.OneDay)),
			funds:    50,
			wantSkip: types.SkipInsufficientFunds,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transfers := &transfer.MockTransferService{}
			transfers.On("Available", ctx, user, tokenA).Return(big.NewInt(tc.funds), nil)

			p, l := newTestProcessor(t, transfers, &assetledger.MockAssetLedger{}, nil)
			p.now = func() time.Time { return now }
			require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, tokenA, tc.plan))

			res, err := p.ExecuteForUser(ctx, user, NewBudget(1000))
			require.NoError(t, err)
			require.Len(t, res.Items, 1)
			require.Equal(t, tc.wantSkip, res.Items[0].Skip)
			require.Equal(t, 0, res.Processed)
			require.Zero(t, res.Total.Sign())
		})
	}
}

func TestContributionCappedAtGoal(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	last := now.Add(-3 * types.OneDay)

	transfers := &transfer.MockTransferService{}
	transfers.On("Available", ctx, user, tokenA).Return(big.NewInt(1000), nil)
	transfers.On("TransferFrom", ctx, user, vault, tokenA, big.NewInt(250)).Return(nil)

	shares := &assetledger.MockAssetLedger{}
	shares.On("RegisterAsset", ctx, tokenA).Return(uint64(1), nil)
	shares.On("Mint", ctx, user, uint64(1), big.NewInt(250)).Return(nil)

	p, l := newTestProcessor(t, transfers, shares, nil)
	p.now = func() time.Time { return now }
	require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, tokenA, activePlan(100, 250, 0, last)))

	res, err := p.ExecuteForUser(ctx, user, NewBudget(1000))
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	// 3 elapsed days would accrue 300, capped at the 250 goal.
	require.Equal(t, int64(250), res.Total.Int64())

	plan, ok, err := l.DailyPlan(ctx, user, tokenA)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(250), plan.CurrentAmount.Int64())
	require.Equal(t, last.Add(3*types.OneDay), plan.LastExecution)
	// Goal completion terminates the plan.
	require.False(t, plan.Enabled)

	transfers.AssertExpectations(t)
	shares.AssertExpectations(t)
}

func TestBudgetCoversOnlyPartOfBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	last := now.Add(-types.OneDay)

	assets := make([]common.Address, 5)
	for i := range assets {
		assets[i] = common.HexToAddress(fmt.Sprintf("0x%02x", 0xa0+i))
	}

	transfers := &transfer.MockTransferService{}
	shares := &assetledger.MockAssetLedger{}
	for i, asset := range assets {
		transfers.On("Available", ctx, user, asset).Return(big.NewInt(1000), nil)
		transfers.On("TransferFrom", ctx, user, vault, asset, big.NewInt(100)).Return(nil)
		shares.On("RegisterAsset", ctx, asset).Return(uint64(i+1), nil)
		shares.On("Mint", ctx, user, uint64(i+1), big.NewInt(100)).Return(nil)
	}

	p, l := newTestProcessor(t, transfers, shares, nil)
	p.now = func() time.Time { return now }
	for _, asset := range assets {
		require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, asset, activePlan(100, 0, 0, last)))
	}

	// Each item costs 10 units; a 20 unit budget affords exactly two.
	res, err := p.ExecuteForUser(ctx, user, NewBudget(20))
	require.NoError(t, err)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 3, res.Skipped)
	require.Equal(t, int64(200), res.Total.Int64())

	var exhausted int
	for _, item := range res.Items {
		if item.Skip == types.SkipBudgetExhausted {
			exhausted++
		}
	}
	require.Equal(t, 3, exhausted)
}

func TestYieldFailureDoesNotAbortItem(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	transfers := &transfer.MockTransferService{}
	transfers.On("Available", ctx, user, tokenA).Return(big.NewInt(1000), nil)
	transfers.On("TransferFrom", ctx, user, vault, tokenA, big.NewInt(100)).Return(nil)

	shares := &assetledger.MockAssetLedger{}
	shares.On("RegisterAsset", ctx, tokenA).Return(uint64(1), nil)
	shares.On("Mint", ctx, user, uint64(1), big.NewInt(100)).Return(nil)

	yieldStrategy := &yield.MockYieldStrategy{}
	yieldStrategy.On("Apply", ctx, user, tokenA, big.NewInt(100)).Return(errors.New("vault unavailable"))

	p, l := newTestProcessor(t, transfers, shares, yieldStrategy)
	p.now = func() time.Time { return now }
	require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, tokenA, activePlan(100, 0, 0, now.Add(-types.OneDay))))

	res, err := p.ExecuteForUser(ctx, user, NewBudget(1000))
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, int64(100), res.Total.Int64())

	var yieldFailed bool
	for _, evt := range l.Events() {
		if evt.Type == types.EventYieldFailed {
			yieldFailed = true
		}
	}
	require.True(t, yieldFailed)
}

func TestTransferFailureIsolated(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	transfers := &transfer.MockTransferService{}
	transfers.On("Available", ctx, user, tokenA).Return(big.NewInt(1000), nil)
	transfers.On("TransferFrom", ctx, user, vault, tokenA, big.NewInt(100)).Return(errors.New("rejected"))

	p, l := newTestProcessor(t, transfers, &assetledger.MockAssetLedger{}, nil)
	p.now = func() time.Time { return now }
	require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, tokenA, activePlan(100, 0, 0, now.Add(-types.OneDay))))

	res, err := p.ExecuteForUser(ctx, user, NewBudget(1000))
	require.NoError(t, err)
	require.Equal(t, 0, res.Processed)
	require.Equal(t, types.SkipTransferFailed, res.Items[0].Skip)

	// The failed transfer must not advance the plan.
	plan, _, err := l.DailyPlan(ctx, user, tokenA)
	require.NoError(t, err)
	require.Zero(t, plan.CurrentAmount.Sign())
}

// faultyPlanStore fails every plan read while delegating everything else.
type faultyPlanStore struct {
	storage.Store
}

func (s *faultyPlanStore) GetDailyPlan(ctx context.Context, user, asset common.Address) (types.DailyContributionPlan, bool, error) {
	return types.DailyContributionPlan{}, false, errors.New("connection reset")
}

func TestPlanLoadFailureHasDistinctSkipReason(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()

	backend := memory.NewBackend()
	l, err := ledger.New(ctx, backend, logger)
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, owner, hookAddr, types.DefaultTreasuryFeeBps))
	require.NoError(t, l.SetDailyPlan(ctx, hookAddr, user, tokenA, activePlan(100, 0, 0, time.Now().UTC().Add(-types.OneDay))))

	broken, err := ledger.New(ctx, &faultyPlanStore{Store: backend}, logger)
	require.NoError(t, err)

	p := NewProcessor(broken, hookAddr, vault, &transfer.MockTransferService{}, &assetledger.MockAssetLedger{}, nil, nil, 5, 10, logger)
	res, err := p.ExecuteForUser(ctx, user, NewBudget(1000))
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, types.SkipPlanLoadFailed, res.Items[0].Skip)
}

func TestEstimatorAdaptation(t *testing.T) {
	testCases := []struct {
		name    string
		initial uint64
		actual  uint64
		want    uint64
	}{
		{name: "Overrun moves a quarter of the error", initial: 100, actual: 200, want: 125},
		{name: "Well under pulls halfway down", initial: 100, actual: 50, want: 75},
		{name: "Within band unchanged", initial: 100, actual: 90, want: 100},
		{name: "Exact match unchanged", initial: 100, actual: 100, want: 100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEstimator(tc.initial)
			e.observe(tc.actual)
			require.Equal(t, tc.want, e.current())
		})
	}
}

func TestBudgetConsumeSaturates(t *testing.T) {
	b := NewBudget(15)
	require.True(t, b.Affords(10))
	b.Consume(10)
	require.False(t, b.Affords(10))
	b.Consume(100)
	require.Zero(t, b.Remaining())
}
