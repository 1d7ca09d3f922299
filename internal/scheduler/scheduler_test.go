package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/daily"
	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage/memory"
	"github.com/spendsave/savings-engine/test/mocks/assetledger"
	"github.com/spendsave/savings-engine/test/mocks/transfer"
)

var (
	owner    = common.HexToAddress("0x01")
	hookAddr = common.HexToAddress("0x02")
	vault    = common.HexToAddress("0x03")
	user     = common.HexToAddress("0x10")
	tokenA   = common.HexToAddress("0xa0")
)

func newTestScheduler(t *testing.T, transfers daily.TransferService, shares daily.AssetLedger) (*SchedulerService, *ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	logger := logrus.New()

	l, err := ledger.New(ctx, memory.NewBackend(), logger)
	require.NoError(t, err)
	require.NoError(t, l.Initialize(ctx, owner, hookAddr, types.DefaultTreasuryFeeBps))

	processor := daily.NewProcessor(l, hookAddr, vault, transfers, shares, nil, nil, 5, 1, logger)
	s, err := NewSchedulerService(l, processor, "0 0 * * *", 1_000_000, logger)
	require.NoError(t, err)
	return s, l
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	logger := logrus.New()
	_, err := NewSchedulerService(nil, nil, "not a cron expression", 1, logger)
	require.Error(t, err)
}

func TestRunOnceProcessesAllPlanUsers(t *testing.T) {
	ctx := context.Background()
	userB := common.HexToAddress("0x11")

	transfers := &transfer.MockTransferService{}
	shares := &assetledger.MockAssetLedger{}
	for _, u := range []common.Address{user, userB} {
		transfers.On("Available", ctx, u, tokenA).Return(big.NewInt(1000), nil)
		transfers.On("TransferFrom", ctx, u, vault, tokenA, big.NewInt(100)).Return(nil)
		shares.On("Mint", ctx, u, uint64(1), big.NewInt(100)).Return(nil)
	}
	shares.On("RegisterAsset", ctx, tokenA).Return(uint64(1), nil)

	s, l := newTestScheduler(t, transfers, shares)
	last := time.Now().UTC().Add(-types.OneDay)
	for _, u := range []common.Address{user, userB} {
		require.NoError(t, l.SetDailyPlan(ctx, hookAddr, u, tokenA, types.DailyContributionPlan{
			Enabled:       true,
			DailyAmount:   big.NewInt(100),
			GoalAmount:    big.NewInt(0),
			CurrentAmount: big.NewInt(0),
			LastExecution: last,
		}))
	}

	require.NoError(t, s.RunOnce(ctx))

	for _, u := range []common.Address{user, userB} {
		plan, ok, err := l.DailyPlan(ctx, u, tokenA)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(100), plan.CurrentAmount.Int64())
	}

	// The sweep flushes the journal, so back-to-back runs do not accumulate.
	require.Empty(t, l.Events())
}

func TestCheckAndRunAnchorsFirstPass(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t, &transfer.MockTransferService{}, &assetledger.MockAssetLedger{})

	base := time.Now().UTC()
	s.now = func() time.Time { return base }

	// First pass only anchors the schedule.
	require.NoError(t, s.checkAndRun(ctx))
	require.Equal(t, base, s.lastRun)

	// Within the same schedule window nothing runs and the anchor holds.
	s.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, s.checkAndRun(ctx))
	require.Equal(t, base, s.lastRun)

	// Past the next midnight the sweep runs and re-anchors.
	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	require.NoError(t, s.checkAndRun(ctx))
	require.Equal(t, base.Add(25*time.Hour), s.lastRun)
}
