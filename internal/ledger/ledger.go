// Package ledger is the single source of truth for savings state. Every
// component reads and mutates state through it; state-changing operations
// check the caller against the module registry before touching the store.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/codec"
	"github.com/spendsave/savings-engine/internal/types"
	"github.com/spendsave/savings-engine/storage"
)

type Ledger struct {
	store  storage.Store
	logger *logrus.Logger

	meta        types.ProtocolMeta
	initialized bool

	// allowed caches the authorization allow-list: owner, hook, and every
	// registered module caller. Rebuilt on load and on registration.
	allowed map[common.Address]struct{}

	// contexts holds the transient per-user swap contexts as packed words.
	// They are memory-only on purpose: a context must never survive past
	// its prepare/settle pair, let alone a process restart.
	contexts map[common.Address]uint256.Int

	events []types.Event
	guard  *callGuard
}

// New builds a ledger over the given store, loading any previously persisted
// protocol meta and registry.
func New(ctx context.Context, store storage.Store, logger *logrus.Logger) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	l := &Ledger{
		store:    store,
		logger:   logger,
		allowed:  make(map[common.Address]struct{}),
		contexts: make(map[common.Address]uint256.Int),
		guard:    newCallGuard(),
	}

	meta, ok, err := store.GetProtocolMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("fail to load protocol meta: %w", err)
	}
	if ok {
		l.meta = meta
		l.initialized = true
	}
	if err := l.reloadAllowList(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Initialize writes the protocol meta exactly once.
func (l *Ledger) Initialize(ctx context.Context, owner, hook common.Address, treasuryFeeBps uint16) error {
	if l.initialized {
		return types.ErrAlreadyInitialized
	}
	if treasuryFeeBps > types.MaxTreasuryFeeBps {
		return fmt.Errorf("%w: treasury fee %d exceeds %d bps", types.ErrInvalidInput, treasuryFeeBps, types.MaxTreasuryFeeBps)
	}

	meta := types.ProtocolMeta{Owner: owner, Hook: hook, TreasuryFeeBps: treasuryFeeBps}
	if err := l.store.SetProtocolMeta(ctx, meta); err != nil {
		return fmt.Errorf("fail to persist protocol meta: %w", err)
	}

	l.meta = meta
	l.initialized = true
	if err := l.reloadAllowList(ctx); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"owner":   owner.Hex(),
		"hook":    hook.Hex(),
		"fee_bps": treasuryFeeBps,
	}).Info("ledger initialized")
	return nil
}

func (l *Ledger) Owner() common.Address  { return l.meta.Owner }
func (l *Ledger) Hook() common.Address   { return l.meta.Hook }
func (l *Ledger) TreasuryFeeBps() uint16 { return l.meta.TreasuryFeeBps }

// SetTreasuryFee reconfigures the protocol fee; the cap is enforced here,
// at configuration time, never at commit time.
func (l *Ledger) SetTreasuryFee(ctx context.Context, caller common.Address, feeBps uint16) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if feeBps > types.MaxTreasuryFeeBps {
		return fmt.Errorf("%w: treasury fee %d exceeds %d bps", types.ErrInvalidInput, feeBps, types.MaxTreasuryFeeBps)
	}

	meta := l.meta
	meta.TreasuryFeeBps = feeBps
	if err := l.store.SetProtocolMeta(ctx, meta); err != nil {
		return fmt.Errorf("fail to persist protocol meta: %w", err)
	}
	l.meta = meta
	return nil
}

// Enter acquires the re-entrancy guard for op. Callers defer the returned
// release.
func (l *Ledger) Enter(op string) (func(), error) {
	return l.guard.enter(op)
}

func (l *Ledger) requireOwner(caller common.Address) error {
	if !l.initialized || caller != l.meta.Owner {
		return types.ErrUnauthorized
	}
	return nil
}

// authorize admits the owner, the hook orchestrator, registered module
// callers, and the affected user acting on their own state.
func (l *Ledger) authorize(caller, user common.Address) error {
	if caller == user {
		return nil
	}
	if _, ok := l.allowed[caller]; ok {
		return nil
	}
	return types.ErrUnauthorized
}

func (l *Ledger) reloadAllowList(ctx context.Context) error {
	allowed := make(map[common.Address]struct{})
	if l.initialized {
		allowed[l.meta.Owner] = struct{}{}
		allowed[l.meta.Hook] = struct{}{}
	}
	entries, err := l.store.Modules(ctx)
	if err != nil {
		return fmt.Errorf("fail to load module registry: %w", err)
	}
	for _, entry := range entries {
		allowed[entry.Caller] = struct{}{}
	}
	l.allowed = allowed
	return nil
}

// RegisterModule maps id to an authorized caller. Owner only; idempotent
// per id, re-registration overwrites.
func (l *Ledger) RegisterModule(ctx context.Context, caller common.Address, id types.ModuleID, moduleCaller common.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty module id", types.ErrInvalidInput)
	}
	if err := l.store.SetModule(ctx, id, moduleCaller); err != nil {
		return fmt.Errorf("fail to register module: %w", err)
	}
	if err := l.reloadAllowList(ctx); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"module": string(id),
		"caller": moduleCaller.Hex(),
	}).Info("module registered")
	return nil
}

// Module resolves a registry entry.
func (l *Ledger) Module(ctx context.Context, id types.ModuleID) (common.Address, error) {
	caller, ok, err := l.store.GetModule(ctx, id)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, types.ErrModuleNotFound
	}
	return caller, nil
}

func (l *Ledger) Modules(ctx context.Context) ([]types.ModuleEntry, error) {
	return l.store.Modules(ctx)
}

// UserConfig reads a user's strategy; a missing record is a zero strategy.
func (l *Ledger) UserConfig(ctx context.Context, user common.Address) (types.UserConfig, error) {
	cfg, _, err := l.store.GetUserConfig(ctx, user)
	return cfg, err
}

// SetUserConfig validates and writes a user's strategy.
func (l *Ledger) SetUserConfig(ctx context.Context, caller, user common.Address, cfg types.UserConfig) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return l.store.SetUserConfig(ctx, user, cfg)
}

// ApplyAutoIncrement bumps the user's percentage by the configured step,
// capped at the max percentage. A no-op when no step is configured.
func (l *Ledger) ApplyAutoIncrement(ctx context.Context, caller, user common.Address) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	cfg, ok, err := l.store.GetUserConfig(ctx, user)
	if err != nil || !ok || cfg.AutoIncrementBps == 0 {
		return err
	}
	if cfg.PercentageBps >= cfg.MaxPercentageBps {
		return nil
	}
	next := uint32(cfg.PercentageBps) + uint32(cfg.AutoIncrementBps)
	if next > uint32(cfg.MaxPercentageBps) {
		next = uint32(cfg.MaxPercentageBps)
	}
	cfg.PercentageBps = uint16(next)
	return l.store.SetUserConfig(ctx, user, cfg)
}

// PutSwapContext stores the packed transient context for user. The hook is
// the only legitimate writer.
func (l *Ledger) PutSwapContext(caller, user common.Address, sc types.SwapContext) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	if !codec.FitsDiversion(sc.PendingDiversion) {
		return fmt.Errorf("%w: pending diversion does not fit the context field", types.ErrInvalidInput)
	}
	l.contexts[user] = codec.PackSwapContext(sc)
	return nil
}

// TakeSwapContext reads and deletes the context in one step, so no exit path
// can leave a stale context behind.
func (l *Ledger) TakeSwapContext(caller, user common.Address) (types.SwapContext, bool, error) {
	if err := l.authorize(caller, user); err != nil {
		return types.SwapContext{}, false, err
	}
	word, ok := l.contexts[user]
	if !ok {
		return types.SwapContext{}, false, nil
	}
	delete(l.contexts, user)
	return codec.UnpackSwapContext(word), true, nil
}

// HasSwapContext reports whether a context is live for user.
func (l *Ledger) HasSwapContext(user common.Address) bool {
	_, ok := l.contexts[user]
	return ok
}

func (l *Ledger) SavingsRecord(ctx context.Context, user, asset common.Address) (types.SavingsRecord, error) {
	rec, _, err := l.store.GetSavingsRecord(ctx, user, asset)
	return rec, err
}

// CreditSavings commits a diversion: net to the user's record, fee to the
// treasury, atomically.
func (l *Ledger) CreditSavings(ctx context.Context, caller, user, asset common.Address, net, fee *big.Int, now time.Time) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	return l.store.CreditSavings(ctx, user, asset, net, fee, now)
}

// DebitSavings performs a checked withdrawal debit.
func (l *Ledger) DebitSavings(ctx context.Context, caller, user, asset common.Address, amount *big.Int) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	return l.store.DebitSavings(ctx, user, asset, amount)
}

func (l *Ledger) SetSavingsUnlock(ctx context.Context, caller, user, asset common.Address, unlockedAt time.Time) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	return l.store.SetSavingsUnlock(ctx, user, asset, unlockedAt)
}

func (l *Ledger) ListSavingsAssets(ctx context.Context, user common.Address) ([]common.Address, error) {
	return l.store.ListSavingsAssets(ctx, user)
}

func (l *Ledger) TreasuryBalance(ctx context.Context, asset common.Address) (*big.Int, error) {
	return l.store.TreasuryBalance(ctx, asset)
}

// CreditTreasury adds penalty or fee income outside the diversion path.
func (l *Ledger) CreditTreasury(ctx context.Context, caller common.Address, asset common.Address, amount *big.Int) error {
	if _, ok := l.allowed[caller]; !ok {
		return types.ErrUnauthorized
	}
	return l.store.CreditTreasury(ctx, asset, amount)
}

// WithdrawTreasury debits accrued fees. Owner only.
func (l *Ledger) WithdrawTreasury(ctx context.Context, caller common.Address, asset common.Address, amount *big.Int) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	return l.store.DebitTreasury(ctx, asset, amount)
}

func (l *Ledger) AppendDCAOrder(ctx context.Context, caller, user common.Address, order types.DCAOrder) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	return l.store.AppendDCAOrder(ctx, user, order)
}

func (l *Ledger) DCAOrders(ctx context.Context, user common.Address) ([]types.DCAOrder, error) {
	return l.store.DCAOrders(ctx, user)
}

func (l *Ledger) MarkDCAExecuted(ctx context.Context, caller, user common.Address, index int) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	return l.store.MarkDCAExecuted(ctx, user, index)
}

func (l *Ledger) DCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, bool, error) {
	return l.store.GetDCAConfig(ctx, user)
}

func (l *Ledger) SetDCAConfig(ctx context.Context, caller, user common.Address, cfg types.DCAConfig) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	if cfg.MinTickImprovement < 0 {
		return fmt.Errorf("%w: min tick improvement must be non-negative", types.ErrInvalidInput)
	}
	if cfg.SlippageBps > types.MaxBasisPoints {
		return fmt.Errorf("%w: slippage %d exceeds %d bps", types.ErrInvalidInput, cfg.SlippageBps, types.MaxBasisPoints)
	}
	if cfg.OrderTTL < 0 {
		return fmt.Errorf("%w: order ttl must be non-negative", types.ErrInvalidInput)
	}
	return l.store.SetDCAConfig(ctx, user, cfg)
}

func (l *Ledger) DailyPlan(ctx context.Context, user, asset common.Address) (types.DailyContributionPlan, bool, error) {
	return l.store.GetDailyPlan(ctx, user, asset)
}

func (l *Ledger) SetDailyPlan(ctx context.Context, caller, user, asset common.Address, plan types.DailyContributionPlan) error {
	if err := l.authorize(caller, user); err != nil {
		return err
	}
	if plan.DailyAmount == nil || plan.DailyAmount.Sign() <= 0 {
		return fmt.Errorf("%w: daily amount must be positive", types.ErrInvalidInput)
	}
	if plan.PenaltyBps > types.MaxBasisPoints {
		return fmt.Errorf("%w: penalty %d exceeds %d bps", types.ErrInvalidInput, plan.PenaltyBps, types.MaxBasisPoints)
	}
	return l.store.SetDailyPlan(ctx, user, asset, plan)
}

func (l *Ledger) ListPlanAssets(ctx context.Context, user common.Address) ([]common.Address, error) {
	return l.store.ListPlanAssets(ctx, user)
}

func (l *Ledger) ListPlanUsers(ctx context.Context) ([]common.Address, error) {
	return l.store.ListPlanUsers(ctx)
}

// AppendEvent records a journal entry. Best-effort failures and skip
// reasons become events rather than returned errors.
func (l *Ledger) AppendEvent(evt types.Event) {
	l.events = append(l.events, evt)
	l.logger.WithFields(logrus.Fields{"event": evt.Type}).Debug("event appended")
}

// Events returns the journal accumulated so far.
func (l *Ledger) Events() []types.Event {
	return append([]types.Event{}, l.events...)
}

// DrainEvents returns the journal accumulated so far and resets it.
// Long-running hosts drain after each sweep so the journal stays bounded.
func (l *Ledger) DrainEvents() []types.Event {
	evts := l.events
	l.events = nil
	return evts
}
