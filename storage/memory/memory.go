// Package memory implements the ledger store as packed in-memory slots. User
// configurations are held as single 256-bit words via internal/codec, which
// keeps the per-call access pattern identical to the persistent backends.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/spendsave/savings-engine/internal/codec"
	"github.com/spendsave/savings-engine/internal/types"
)

type pairKey struct {
	user  common.Address
	asset common.Address
}

// Backend is an in-memory Store implementation. The host serializes calls,
// so the mutex only protects against accidental cross-goroutine use in
// tests and tooling.
type Backend struct {
	mu sync.RWMutex

	configs    map[common.Address]uint256.Int
	savings    map[pairKey]types.SavingsRecord
	dcaOrders  map[common.Address][]types.DCAOrder
	dcaConfigs map[common.Address]types.DCAConfig
	plans      map[pairKey]types.DailyContributionPlan
	planAssets map[common.Address][]common.Address
	treasury   map[common.Address]*big.Int
	modules    map[types.ModuleID]common.Address

	meta    types.ProtocolMeta
	hasMeta bool
}

// NewBackend returns an empty in-memory store.
func NewBackend() *Backend {
	return &Backend{
		configs:    make(map[common.Address]uint256.Int),
		savings:    make(map[pairKey]types.SavingsRecord),
		dcaOrders:  make(map[common.Address][]types.DCAOrder),
		dcaConfigs: make(map[common.Address]types.DCAConfig),
		plans:      make(map[pairKey]types.DailyContributionPlan),
		planAssets: make(map[common.Address][]common.Address),
		treasury:   make(map[common.Address]*big.Int),
		modules:    make(map[types.ModuleID]common.Address),
	}
}

func (b *Backend) Close() error { return nil }

func (b *Backend) GetUserConfig(_ context.Context, user common.Address) (types.UserConfig, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	word, ok := b.configs[user]
	if !ok {
		return types.UserConfig{}, false, nil
	}
	return codec.UnpackUserConfig(word), true, nil
}

func (b *Backend) SetUserConfig(_ context.Context, user common.Address, cfg types.UserConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs[user] = codec.PackUserConfig(cfg)
	return nil
}

func (b *Backend) GetSavingsRecord(_ context.Context, user, asset common.Address) (types.SavingsRecord, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.savings[pairKey{user, asset}]
	if !ok {
		return types.NewSavingsRecord(), false, nil
	}
	return rec.Copy(), true, nil
}

func (b *Backend) CreditSavings(_ context.Context, user, asset common.Address, net, fee *big.Int, now time.Time) error {
	if net == nil || fee == nil || net.Sign() < 0 || fee.Sign() < 0 {
		return fmt.Errorf("%w: credit amounts must be non-negative", types.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey{user, asset}
	rec, ok := b.savings[key]
	if !ok {
		rec = types.NewSavingsRecord()
	} else {
		rec = rec.Copy()
	}
	rec.Balance.Add(rec.Balance, net)
	rec.TotalSaved.Add(rec.TotalSaved, net)
	rec.LastSaved = now
	b.savings[key] = rec

	b.creditTreasuryLocked(asset, fee)
	return nil
}

func (b *Backend) DebitSavings(_ context.Context, user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: debit amount must be non-negative", types.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey{user, asset}
	rec, ok := b.savings[key]
	if !ok || rec.Balance.Cmp(amount) < 0 {
		return types.ErrInsufficientSavings
	}
	rec = rec.Copy()
	rec.Balance.Sub(rec.Balance, amount)
	b.savings[key] = rec
	return nil
}

func (b *Backend) SetSavingsUnlock(_ context.Context, user, asset common.Address, unlockedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey{user, asset}
	rec, ok := b.savings[key]
	if !ok {
		rec = types.NewSavingsRecord()
	} else {
		rec = rec.Copy()
	}
	rec.UnlockedAt = unlockedAt
	b.savings[key] = rec
	return nil
}

func (b *Backend) ListSavingsAssets(_ context.Context, user common.Address) ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var assets []common.Address
	for key := range b.savings {
		if key.user == user {
			assets = append(assets, key.asset)
		}
	}
	sortAddresses(assets)
	return assets, nil
}

func (b *Backend) AppendDCAOrder(_ context.Context, user common.Address, order types.DCAOrder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dcaOrders[user] = append(b.dcaOrders[user], order.Copy())
	return nil
}

func (b *Backend) DCAOrders(_ context.Context, user common.Address) ([]types.DCAOrder, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	orders := b.dcaOrders[user]
	out := make([]types.DCAOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Copy())
	}
	return out, nil
}

func (b *Backend) MarkDCAExecuted(_ context.Context, user common.Address, index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := b.dcaOrders[user]
	if index < 0 || index >= len(orders) {
		return types.ErrIndexOutOfBounds
	}
	orders[index].Executed = true
	return nil
}

func (b *Backend) GetDCAConfig(_ context.Context, user common.Address) (types.DCAConfig, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cfg, ok := b.dcaConfigs[user]
	return cfg, ok, nil
}

func (b *Backend) SetDCAConfig(_ context.Context, user common.Address, cfg types.DCAConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dcaConfigs[user] = cfg
	return nil
}

func (b *Backend) GetDailyPlan(_ context.Context, user, asset common.Address) (types.DailyContributionPlan, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	plan, ok := b.plans[pairKey{user, asset}]
	if !ok {
		return types.DailyContributionPlan{}, false, nil
	}
	return plan.Copy(), true, nil
}

func (b *Backend) SetDailyPlan(_ context.Context, user, asset common.Address, plan types.DailyContributionPlan) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pairKey{user, asset}
	if _, ok := b.plans[key]; !ok {
		b.planAssets[user] = append(b.planAssets[user], asset)
	}
	b.plans[key] = plan.Copy()
	return nil
}

func (b *Backend) ListPlanAssets(_ context.Context, user common.Address) ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]common.Address{}, b.planAssets[user]...), nil
}

func (b *Backend) ListPlanUsers(_ context.Context) ([]common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	users := make([]common.Address, 0, len(b.planAssets))
	for user := range b.planAssets {
		users = append(users, user)
	}
	sortAddresses(users)
	return users, nil
}

func (b *Backend) TreasuryBalance(_ context.Context, asset common.Address) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bal, ok := b.treasury[asset]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(bal), nil
}

func (b *Backend) CreditTreasury(_ context.Context, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: treasury credit must be non-negative", types.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditTreasuryLocked(asset, amount)
	return nil
}

func (b *Backend) DebitTreasury(_ context.Context, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: treasury debit must be non-negative", types.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, ok := b.treasury[asset]
	if !ok || bal.Cmp(amount) < 0 {
		return types.ErrInsufficientBalance
	}
	b.treasury[asset] = new(big.Int).Sub(bal, amount)
	return nil
}

func (b *Backend) creditTreasuryLocked(asset common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	bal, ok := b.treasury[asset]
	if !ok {
		bal = big.NewInt(0)
	}
	b.treasury[asset] = new(big.Int).Add(bal, amount)
}

func (b *Backend) GetModule(_ context.Context, id types.ModuleID) (common.Address, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	caller, ok := b.modules[id]
	return caller, ok, nil
}

func (b *Backend) SetModule(_ context.Context, id types.ModuleID, caller common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.modules[id] = caller
	return nil
}

func (b *Backend) Modules(_ context.Context) ([]types.ModuleEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]types.ModuleEntry, 0, len(b.modules))
	for id, caller := range b.modules {
		entries = append(entries, types.ModuleEntry{ID: id, Caller: caller})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (b *Backend) GetProtocolMeta(_ context.Context) (types.ProtocolMeta, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta, b.hasMeta, nil
}

func (b *Backend) SetProtocolMeta(_ context.Context, meta types.ProtocolMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta = meta
	b.hasMeta = true
	return nil
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return addrs[i].Hex() < addrs[j].Hex()
	})
}
