package ledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage/memory"
)

var (
	owner      = common.HexToAddress("0x01")
	hookAddr   = common.HexToAddress("0x02")
	moduleAddr = common.HexToAddress("0x03")
	user       = common.HexToAddress("0x10")
	stranger   = common.HexToAddress("0x99")
	asset      = common.HexToAddress("0xa0")
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(context.Background(), memory.NewBackend(), logrus.New())
	require.NoError(t, err)
	require.NoError(t, l.Initialize(context.Background(), owner, hookAddr, types.DefaultTreasuryFeeBps))
	return l
}

func TestInitializeOnce(t *testing.T) {
	l, err := New(context.Background(), memory.NewBackend(), logrus.New())
	require.NoError(t, err)

	require.NoError(t, l.Initialize(context.Background(), owner, hookAddr, 80))
	err = l.Initialize(context.Background(), owner, hookAddr, 80)
	require.ErrorIs(t, err, types.ErrAlreadyInitialized)
}

func TestInitializeRejectsExcessiveFee(t *testing.T) {
	l, err := New(context.Background(), memory.NewBackend(), logrus.New())
	require.NoError(t, err)

	err = l.Initialize(context.Background(), owner, hookAddr, types.MaxTreasuryFeeBps+1)
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestRegisterModule(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	testCases := []struct {
		name    string
		caller  common.Address
		id      types.ModuleID
		wantErr error
	}{
		{name: "Owner registers", caller: owner, id: types.ModuleDCA},
		{name: "Non-owner rejected", caller: stranger, id: types.ModuleDCA, wantErr: types.ErrUnauthorized},
		{name: "Empty id rejected", caller: owner, id: "", wantErr: types.ErrInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.RegisterModule(ctx, tc.caller, tc.id, moduleAddr)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := l.Module(ctx, tc.id)
			require.NoError(t, err)
			require.Equal(t, moduleAddr, got)
		})
	}
}

func TestRegisterModuleOverwrites(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.RegisterModule(ctx, owner, types.ModuleDCA, moduleAddr))
	replacement := common.HexToAddress("0x04")
	require.NoError(t, l.RegisterModule(ctx, owner, types.ModuleDCA, replacement))

	got, err := l.Module(ctx, types.ModuleDCA)
	require.NoError(t, err)
	require.Equal(t, replacement, got)

	// the replacement caller is now authorized
	require.NoError(t, l.SetUserConfig(ctx, replacement, user, types.UserConfig{PercentageBps: 100, MaxPercentageBps: 1000}))
}

func TestModuleNotFound(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Module(context.Background(), types.ModuleYield)
	require.ErrorIs(t, err, types.ErrModuleNotFound)
}

func TestSetUserConfigAuthorization(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	cfg := types.UserConfig{PercentageBps: 1000, MaxPercentageBps: 5000}

	require.NoError(t, l.SetUserConfig(ctx, user, user, cfg), "user manages own config")
	require.NoError(t, l.SetUserConfig(ctx, hookAddr, user, cfg), "hook is authorized")
	require.ErrorIs(t, l.SetUserConfig(ctx, stranger, user, cfg), types.ErrUnauthorized)
}

func TestSetUserConfigValidation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	err := l.SetUserConfig(ctx, user, user, types.UserConfig{PercentageBps: 2000, MaxPercentageBps: 1000})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	err = l.SetUserConfig(ctx, user, user, types.UserConfig{PercentageBps: 0, MaxPercentageBps: 10001})
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestApplyAutoIncrement(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.SetUserConfig(ctx, user, user, types.UserConfig{
		PercentageBps:    900,
		AutoIncrementBps: 200,
		MaxPercentageBps: 1000,
	}))

	require.NoError(t, l.ApplyAutoIncrement(ctx, hookAddr, user))
	cfg, err := l.UserConfig(ctx, user)
	require.NoError(t, err)
	require.Equal(t, uint16(1000), cfg.PercentageBps, "increment capped at max percentage")

	require.NoError(t, l.ApplyAutoIncrement(ctx, hookAddr, user))
	cfg, err = l.UserConfig(ctx, user)
	require.NoError(t, err)
	require.Equal(t, uint16(1000), cfg.PercentageBps, "already at cap stays put")
}

func TestSetDCAConfigValidation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	target := common.HexToAddress("0xb0")

	err := l.SetDCAConfig(ctx, user, user, types.DCAConfig{TargetAsset: target, MinTickImprovement: -1})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	err = l.SetDCAConfig(ctx, user, user, types.DCAConfig{TargetAsset: target, SlippageBps: 10_001})
	require.ErrorIs(t, err, types.ErrInvalidInput)

	require.NoError(t, l.SetDCAConfig(ctx, user, user, types.DCAConfig{
		TargetAsset: target,
		SlippageBps: 50,
		OrderTTL:    time.Hour,
	}))

	cfg, ok, err := l.DCAConfig(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, target, cfg.TargetAsset)

	require.ErrorIs(t, l.SetDCAConfig(ctx, stranger, user, types.DCAConfig{TargetAsset: target}), types.ErrUnauthorized)
}

func TestSwapContextLifecycle(t *testing.T) {
	l := newTestLedger(t)

	sc := types.SwapContext{
		PendingDiversion: big.NewInt(1_000),
		PercentageBps:    1000,
		HasStrategy:      true,
	}
	require.NoError(t, l.PutSwapContext(hookAddr, user, sc))
	require.True(t, l.HasSwapContext(user))

	got, ok, err := l.TakeSwapContext(hookAddr, user)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, sc.PendingDiversion.Cmp(got.PendingDiversion))
	require.Equal(t, sc.PercentageBps, got.PercentageBps)
	require.False(t, l.HasSwapContext(user), "take deletes the context")

	_, ok, err = l.TakeSwapContext(hookAddr, user)
	require.NoError(t, err)
	require.False(t, ok, "second take finds nothing")
}

func TestPutSwapContextRejectsOverwideAmount(t *testing.T) {
	l := newTestLedger(t)

	sc := types.SwapContext{
		PendingDiversion: new(big.Int).Lsh(big.NewInt(1), 129),
		HasStrategy:      true,
	}
	require.ErrorIs(t, l.PutSwapContext(hookAddr, user, sc), types.ErrInvalidInput)
}

func TestCreditAndDebitSavings(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	now := time.Now().UTC()

	require.NoError(t, l.CreditSavings(ctx, hookAddr, user, asset, big.NewInt(992), big.NewInt(8), now))

	rec, err := l.SavingsRecord(ctx, user, asset)
	require.NoError(t, err)
	require.Equal(t, int64(992), rec.Balance.Int64())
	require.Equal(t, int64(992), rec.TotalSaved.Int64())

	treasury, err := l.TreasuryBalance(ctx, asset)
	require.NoError(t, err)
	require.Equal(t, int64(8), treasury.Int64())

	err = l.DebitSavings(ctx, user, user, asset, big.NewInt(1_000))
	require.ErrorIs(t, err, types.ErrInsufficientSavings)

	rec, err = l.SavingsRecord(ctx, user, asset)
	require.NoError(t, err)
	require.Equal(t, int64(992), rec.Balance.Int64(), "failed debit must not mutate state")

	require.NoError(t, l.DebitSavings(ctx, user, user, asset, big.NewInt(992)))
	rec, err = l.SavingsRecord(ctx, user, asset)
	require.NoError(t, err)
	require.Zero(t, rec.Balance.Sign())
	require.Equal(t, int64(992), rec.TotalSaved.Int64(), "lifetime total is monotonic")
}

func TestTreasuryWithdrawal(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	require.NoError(t, l.CreditSavings(ctx, hookAddr, user, asset, big.NewInt(0), big.NewInt(50), time.Now()))

	require.ErrorIs(t, l.WithdrawTreasury(ctx, stranger, asset, big.NewInt(10)), types.ErrUnauthorized)
	require.ErrorIs(t, l.WithdrawTreasury(ctx, owner, asset, big.NewInt(100)), types.ErrInsufficientBalance)
	require.NoError(t, l.WithdrawTreasury(ctx, owner, asset, big.NewInt(50)))

	bal, err := l.TreasuryBalance(ctx, asset)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())
}

func TestReentrancyGuard(t *testing.T) {
	l := newTestLedger(t)

	release, err := l.Enter("settle")
	require.NoError(t, err)

	_, err = l.Enter("settle")
	require.ErrorIs(t, err, types.ErrReentrantCall)

	_, err = l.Enter("prepare")
	require.NoError(t, err, "distinct operations do not collide")

	release()
	release2, err := l.Enter("settle")
	require.NoError(t, err, "released guard can be re-acquired")
	release2()
}

func TestEventJournalDrain(t *testing.T) {
	l := newTestLedger(t)

	l.AppendEvent(types.Event{Type: types.EventSaved})
	l.AppendEvent(types.Event{Type: types.EventTreasuryFee})
	require.Len(t, l.Events(), 2)

	drained := l.DrainEvents()
	require.Len(t, drained, 2)
	require.Equal(t, types.EventSaved, drained[0].Type)

	require.Empty(t, l.Events())
	require.Empty(t, l.DrainEvents())
}

func TestLedgerReloadsStateFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewBackend()

	l1, err := New(ctx, store, logrus.New())
	require.NoError(t, err)
	require.NoError(t, l1.Initialize(ctx, owner, hookAddr, 80))
	require.NoError(t, l1.RegisterModule(ctx, owner, types.ModuleDaily, moduleAddr))

	l2, err := New(ctx, store, logrus.New())
	require.NoError(t, err)
	require.ErrorIs(t, l2.Initialize(ctx, owner, hookAddr, 80), types.ErrAlreadyInitialized)
	require.Equal(t, uint16(80), l2.TreasuryFeeBps())

	// registry allow-list survives the reload
	cfg := types.UserConfig{PercentageBps: 100, MaxPercentageBps: 1000}
	require.NoError(t, l2.SetUserConfig(ctx, moduleAddr, user, cfg))
}
