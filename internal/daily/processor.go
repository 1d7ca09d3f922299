// Package daily executes scheduled contribution plans in fixed-size batches
// under a resource budget. Item failures are isolated into skip reasons; the
// result always reports how many items succeeded, never all-or-nothing.
package daily

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
)

const defaultBatchSize = 5

// TransferService moves funds between external accounts. Failures are caught
// per item and reported as skip reasons.
type TransferService interface {
	TransferFrom(ctx context.Context, owner, recipient, asset common.Address, amount *big.Int) error
	Available(ctx context.Context, owner, asset common.Address) (*big.Int, error)
}

// AssetLedger is the external accounting-token service that represents
// savings as transferable shares.
type AssetLedger interface {
	RegisterAsset(ctx context.Context, asset common.Address) (uint64, error)
	Mint(ctx context.Context, user common.Address, assetID uint64, amount *big.Int) error
	Burn(ctx context.Context, user common.Address, assetID uint64, amount *big.Int) error
	BalanceOf(ctx context.Context, user common.Address, assetID uint64) (*big.Int, error)
}

// YieldStrategy is applied best-effort after a successful contribution.
type YieldStrategy interface {
	Apply(ctx context.Context, user, asset common.Address, amount *big.Int) error
}

// ItemResult is the outcome of one (user, asset) plan item. A zero Skip
// means the contribution was executed.
type ItemResult struct {
	Asset  common.Address
	Amount *big.Int
	Skip   types.SkipReason
}

// Result aggregates one ExecuteForUser call. Total is the sum of the
// executed contribution amounts only.
type Result struct {
	Items     []ItemResult
	Total     *big.Int
	Processed int
	Skipped   int
}

type Processor struct {
	ledger    *ledger.Ledger
	actor     common.Address
	vault     common.Address
	transfers TransferService
	shares    AssetLedger
	yield     YieldStrategy
	sdClient  *statsd.Client
	logger    *logrus.Logger

	batchSize int
	est       *estimator
	assetIDs  map[common.Address]uint64

	now func() time.Time
	// itemCost converts an item's execution into budget units; the default
	// measures elapsed microseconds.
	itemCost func(start time.Time) uint64
}

func NewProcessor(l *ledger.Ledger, actor, vault common.Address, transfers TransferService, shares AssetLedger, yieldStrategy YieldStrategy, sdClient *statsd.Client, batchSize int, initialEstimate uint64, logger *logrus.Logger) *Processor {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Processor{
		ledger:    l,
		actor:     actor,
		vault:     vault,
		transfers: transfers,
		shares:    shares,
		yield:     yieldStrategy,
		sdClient:  sdClient,
		logger:    logger,
		batchSize: batchSize,
		est:       newEstimator(initialEstimate),
		assetIDs:  make(map[common.Address]uint64),
		now:       time.Now,
		itemCost: func(start time.Time) uint64 {
			cost := uint64(time.Since(start) / time.Microsecond)
			if cost == 0 {
				cost = 1
			}
			return cost
		},
	}
}

// ExecuteForUser processes the user's plan assets in batches, stopping early
// when the budget no longer covers the per-item estimate. Remaining items
// are reported as budget-exhausted skips, never silently dropped.
func (p *Processor) ExecuteForUser(ctx context.Context, user common.Address, budget *Budget) (Result, error) {
	defer p.measureTime("daily.user.latency", p.now(), []string{})

	assets, err := p.ledger.ListPlanAssets(ctx, user)
	if err != nil {
		return Result{}, fmt.Errorf("fail to list plan assets: %w", err)
	}

	res := Result{Total: big.NewInt(0)}
	now := p.now().UTC()
	exhausted := false

	for i := 0; i < len(assets); i += p.batchSize {
		if !budget.Affords(p.est.current()) {
			exhausted = true
		}
		end := i + p.batchSize
		if end > len(assets) {
			end = len(assets)
		}
		for _, asset := range assets[i:end] {
			if !exhausted && !budget.Affords(p.est.current()) {
				exhausted = true
			}
			if exhausted {
				res.Items = append(res.Items, p.skip(user, asset, types.SkipBudgetExhausted))
				res.Skipped++
				continue
			}

			start := p.now()
			item := p.executeOne(ctx, user, asset, now)
			if item.Skip != types.SkipNone {
				res.Items = append(res.Items, item)
				res.Skipped++
				continue
			}

			actual := p.itemCost(start)
			budget.Consume(actual)
			p.est.observe(actual)

			res.Items = append(res.Items, item)
			res.Processed++
			res.Total.Add(res.Total, item.Amount)
		}
	}
	return res, nil
}

// executeOne advances a single plan. Every early return is a skip reason;
// errors from collaborators never escape as item errors.
func (p *Processor) executeOne(ctx context.Context, user, asset common.Address, now time.Time) ItemResult {
	plan, ok, err := p.ledger.DailyPlan(ctx, user, asset)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"user": user.Hex(), "asset": asset.Hex(),
		}).Error("fail to load daily plan")
		return p.skip(user, asset, types.SkipPlanLoadFailed)
	}
	if !ok || !plan.Enabled {
		return p.skip(user, asset, types.SkipDisabled)
	}
	if !plan.EndTime.IsZero() && now.After(plan.EndTime) {
		return p.skip(user, asset, types.SkipPlanEnded)
	}
	if plan.GoalReached() {
		return p.skip(user, asset, types.SkipGoalReached)
	}

	elapsed := plan.ElapsedDays(now)
	if elapsed == 0 {
		return p.skip(user, asset, types.SkipNoElapsedDays)
	}

	amount := new(big.Int).Mul(plan.DailyAmount, big.NewInt(elapsed))
	if plan.GoalAmount != nil && plan.GoalAmount.Sign() > 0 {
		remaining := new(big.Int).Sub(plan.GoalAmount, plan.CurrentAmount)
		if amount.Cmp(remaining) > 0 {
			amount.Set(remaining)
		}
	}
	if amount.Sign() <= 0 {
		return p.skip(user, asset, types.SkipGoalReached)
	}

	available, err := p.transfers.Available(ctx, user, asset)
	if err != nil || available == nil || available.Cmp(amount) < 0 {
		return p.skip(user, asset, types.SkipInsufficientFunds)
	}
	if err := p.transfers.TransferFrom(ctx, user, p.vault, asset, amount); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"user": user.Hex(), "asset": asset.Hex(),
		}).Warn("fail to transfer daily contribution")
		return p.skip(user, asset, types.SkipTransferFailed)
	}

	if err := p.mintShares(ctx, user, asset, amount); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"user": user.Hex(), "asset": asset.Hex(),
		}).Error("fail to mint share credit")
		return p.skip(user, asset, types.SkipTransferFailed)
	}

	plan.CurrentAmount.Add(plan.CurrentAmount, amount)
	plan.LastExecution = plan.LastExecution.Add(time.Duration(elapsed) * types.OneDay)
	if plan.GoalReached() {
		plan.Enabled = false
	}
	if err := p.ledger.SetDailyPlan(ctx, p.actor, user, asset, plan); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"user": user.Hex(), "asset": asset.Hex(),
		}).Error("fail to persist daily plan")
		return p.skip(user, asset, types.SkipTransferFailed)
	}

	if p.yield != nil {
		if err := p.yield.Apply(ctx, user, asset, amount); err != nil {
			p.ledger.AppendEvent(types.Event{
				Type: types.EventYieldFailed,
				Attributes: map[string]string{
					"user":   user.Hex(),
					"asset":  asset.Hex(),
					"reason": err.Error(),
				},
			})
			p.logger.WithError(err).WithFields(logrus.Fields{
				"user": user.Hex(), "asset": asset.Hex(),
			}).Warn("fail to apply yield strategy")
		}
	}

	p.ledger.AppendEvent(types.Event{
		Type: types.EventDailyDone,
		Attributes: map[string]string{
			"user":   user.Hex(),
			"asset":  asset.Hex(),
			"amount": amount.String(),
		},
	})
	p.incCounter("daily.processed", []string{})
	return ItemResult{Asset: asset, Amount: amount}
}

func (p *Processor) mintShares(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	id, ok := p.assetIDs[asset]
	if !ok {
		var err error
		id, err = p.shares.RegisterAsset(ctx, asset)
		if err != nil {
			return fmt.Errorf("fail to register asset: %w", err)
		}
		p.assetIDs[asset] = id
	}
	if err := p.shares.Mint(ctx, user, id, amount); err != nil {
		return fmt.Errorf("fail to mint shares: %w", err)
	}
	return nil
}

func (p *Processor) skip(user, asset common.Address, reason types.SkipReason) ItemResult {
	p.ledger.AppendEvent(types.Event{
		Type: types.EventDailySkipped,
		Attributes: map[string]string{
			"user":   user.Hex(),
			"asset":  asset.Hex(),
			"reason": string(reason),
		},
	})
	p.incCounter("daily.skipped", []string{"reason:" + string(reason)})
	return ItemResult{Asset: asset, Skip: reason}
}

func (p *Processor) incCounter(name string, tags []string) {
	if p.sdClient == nil {
		return
	}
	if err := p.sdClient.Count(name, 1, tags, 1); err != nil {
		p.logger.Errorf("fail to count metric, err: %v", err)
	}
}

func (p *Processor) measureTime(name string, start time.Time, tags []string) {
	if p.sdClient == nil {
		return
	}
	if err := p.sdClient.Timing(name, time.Since(start), tags, 1); err != nil {
		p.logger.Errorf("fail to measure time metric, err: %v", err)
	}
}
