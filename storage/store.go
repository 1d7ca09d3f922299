package storage

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spendsave/savings-engine/internal/types"
)

// Store is the persistence boundary of the central ledger. Implementations
// must make every method atomic on its own; methods that touch two entities
// (CreditSavings) commit both writes or neither.
//
// The transient SwapContext is deliberately absent: it never outlives a
// prepare/settle pair and is held by the ledger in memory only.
type Store interface {
	UserConfigRepository
	SavingsRepository
	DCARepository
	PlanRepository
	TreasuryRepository
	RegistryRepository
	Close() error
}

type UserConfigRepository interface {
	GetUserConfig(ctx context.Context, user common.Address) (types.UserConfig, bool, error)
	SetUserConfig(ctx context.Context, user common.Address, cfg types.UserConfig) error
}

type SavingsRepository interface {
	GetSavingsRecord(ctx context.Context, user common.Address, asset common.Address) (types.SavingsRecord, bool, error)
	// CreditSavings credits net to the user's record and fee to the
	// treasury in one transaction.
	CreditSavings(ctx context.Context, user common.Address, asset common.Address, net, fee *big.Int, now time.Time) error
	// DebitSavings subtracts amount with a checked subtraction; it returns
	// types.ErrInsufficientSavings without mutating state when the balance
	// is too small.
	DebitSavings(ctx context.Context, user common.Address, asset common.Address, amount *big.Int) error
	SetSavingsUnlock(ctx context.Context, user common.Address, asset common.Address, unlockedAt time.Time) error
	ListSavingsAssets(ctx context.Context, user common.Address) ([]common.Address, error)
}

type DCARepository interface {
	AppendDCAOrder(ctx context.Context, user common.Address, order types.DCAOrder) error
	DCAOrders(ctx context.Context, user common.Address) ([]types.DCAOrder, error)
	// MarkDCAExecuted is idempotent; an index past the end of the user's
	// queue returns types.ErrIndexOutOfBounds.
	MarkDCAExecuted(ctx context.Context, user common.Address, index int) error
	GetDCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, bool, error)
	SetDCAConfig(ctx context.Context, user common.Address, cfg types.DCAConfig) error
}

type PlanRepository interface {
	GetDailyPlan(ctx context.Context, user common.Address, asset common.Address) (types.DailyContributionPlan, bool, error)
	SetDailyPlan(ctx context.Context, user common.Address, asset common.Address, plan types.DailyContributionPlan) error
	ListPlanAssets(ctx context.Context, user common.Address) ([]common.Address, error)
	ListPlanUsers(ctx context.Context) ([]common.Address, error)
}

type TreasuryRepository interface {
	TreasuryBalance(ctx context.Context, asset common.Address) (*big.Int, error)
	CreditTreasury(ctx context.Context, asset common.Address, amount *big.Int) error
	DebitTreasury(ctx context.Context, asset common.Address, amount *big.Int) error
}

type RegistryRepository interface {
	GetModule(ctx context.Context, id types.ModuleID) (common.Address, bool, error)
	// SetModule is idempotent per id; re-registration overwrites.
	SetModule(ctx context.Context, id types.ModuleID, caller common.Address) error
	Modules(ctx context.Context) ([]types.ModuleEntry, error)

	GetProtocolMeta(ctx context.Context) (types.ProtocolMeta, bool, error)
	SetProtocolMeta(ctx context.Context, meta types.ProtocolMeta) error
}
