// Package hook implements the two-phase interception protocol invoked by the
// external exchange engine. Prepare runs before the exchange executes and
// withholds the diversion; Settle runs after it settles and commits the
// diversion to the ledger. The transient SwapContext carries the computation
// between the two calls and never survives a settle.
package hook

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/dca"
	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/savings"
	"github.com/spendsave/savings-engine/internal/types"
)

// Direction tells which side of the exchange the caller fixed.
type Direction uint8

const (
	ExactInput Direction = iota
	ExactOutput
)

// defaultOrderTTL bounds orders enqueued for users who never set an explicit
// TTL in their DCA config.
const defaultOrderTTL = 24 * time.Hour

// PrepareResult is the adjustment returned to the exchange engine. The engine
// proceeds with AdjustedAmount; Diversion is what was withheld.
type PrepareResult struct {
	AdjustedAmount *big.Int
	Diversion      *big.Int
}

type Hook struct {
	ledger *ledger.Ledger
	engine *savings.Engine
	queue  *dca.Queue
	actor  common.Address
	logger *logrus.Logger

	// roundingUnit is the unit round-up diversions snap to when the user's
	// strategy sets the round-up flag.
	roundingUnit *big.Int
	now          func() time.Time
}

func NewHook(l *ledger.Ledger, engine *savings.Engine, queue *dca.Queue, actor common.Address, roundingUnit *big.Int, logger *logrus.Logger) *Hook {
	return &Hook{
		ledger:       l,
		engine:       engine,
		queue:        queue,
		actor:        actor,
		logger:       logger,
		roundingUnit: roundingUnit,
		now:          time.Now,
	}
}

// Prepare loads the user's strategy and, when one is active, withholds the
// tentative diversion and records a SwapContext for the matching Settle. A
// user with no strategy gets the amount back untouched and no context.
//
// Input-side diversion is only possible when the input amount is the fixed
// side; an exact-output exchange with an input-side strategy defers entirely,
// and the settle commits nothing for it.
func (h *Hook) Prepare(ctx context.Context, user, assetIn, assetOut common.Address, amount *big.Int, direction Direction) (PrepareResult, error) {
	release, err := h.ledger.Enter("hook.prepare")
	if err != nil {
		return PrepareResult{}, err
	}
	defer release()

	if amount == nil || amount.Sign() < 0 {
		return PrepareResult{}, fmt.Errorf("%w: exchange amount must be non-negative", types.ErrInvalidInput)
	}

	cfg, err := h.ledger.UserConfig(ctx, user)
	if err != nil {
		return PrepareResult{}, fmt.Errorf("fail to load user config: %w", err)
	}
	if !cfg.HasStrategy() {
		return PrepareResult{AdjustedAmount: amount, Diversion: big.NewInt(0)}, nil
	}

	diverted := big.NewInt(0)
	adjusted := amount
	if cfg.TokenType == types.SavingsTokenInput && direction == ExactInput {
		diverted = savings.ComputeDiversion(amount, cfg.PercentageBps, cfg.RoundUp, h.roundingUnit)
		adjusted = new(big.Int).Sub(amount, diverted)
	}

	sc := types.SwapContext{
		PendingDiversion: diverted,
		PercentageBps:    cfg.PercentageBps,
		HasStrategy:      true,
		RoundUp:          cfg.RoundUp,
		DCAEnabled:       cfg.DCAEnabled,
		TokenType:        cfg.TokenType,
	}
	if err := h.ledger.PutSwapContext(h.actor, user, sc); err != nil {
		return PrepareResult{}, fmt.Errorf("fail to store swap context: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"user":     user.Hex(),
		"asset_in": assetIn.Hex(),
		"diverted": diverted.String(),
	}).Debug("prepare withheld diversion")
	return PrepareResult{AdjustedAmount: adjusted, Diversion: diverted}, nil
}

// Settle consumes the SwapContext written at prepare time and commits the
// diversion. The context read deletes it, so every exit path, including a
// failed commit, leaves no context behind. An absent context is a no-op; the
// exchange engine is never faulted for calling settle without a prepare.
//
// The commit happens before the best-effort steps: a DCA enqueue or
// auto-increment failure cannot lose an already-computed diversion.
func (h *Hook) Settle(ctx context.Context, user, assetIn, assetOut common.Address, actualOut *big.Int, direction Direction) (*big.Int, error) {
	release, err := h.ledger.Enter("hook.settle")
	if err != nil {
		return nil, err
	}
	defer release()

	sc, ok, err := h.ledger.TakeSwapContext(h.actor, user)
	if err != nil {
		return nil, err
	}
	if !ok || !sc.HasStrategy {
		return big.NewInt(0), nil
	}

	asset, diverted := h.resolveDiversion(sc, assetIn, assetOut, actualOut)
	if diverted.Sign() == 0 {
		h.ledger.AppendEvent(types.Event{
			Type: types.EventSaveSkipped,
			Attributes: map[string]string{
				"user":   user.Hex(),
				"asset":  asset.Hex(),
				"reason": "zero_diversion",
			},
		})
		return big.NewInt(0), nil
	}

	now := h.now().UTC()
	net, err := h.engine.Commit(ctx, user, asset, diverted, now)
	if err != nil {
		return nil, fmt.Errorf("fail to settle diversion: %w", err)
	}

	if sc.DCAEnabled {
		h.enqueueConversion(ctx, user, asset, net, now)
	}
	if err := h.ledger.ApplyAutoIncrement(ctx, h.actor, user); err != nil {
		h.logger.WithFields(logrus.Fields{
			"user": user.Hex(),
		}).WithError(err).Warn("fail to apply auto increment")
	}
	return net, nil
}

// resolveDiversion picks the savings asset and the diverted amount from the
// context. Input-side diversion was computed at prepare; output-side and
// specific-target diversion come out of the actual exchange output.
func (h *Hook) resolveDiversion(sc types.SwapContext, assetIn, assetOut common.Address, actualOut *big.Int) (common.Address, *big.Int) {
	if sc.TokenType == types.SavingsTokenInput {
		diverted := sc.PendingDiversion
		if diverted == nil {
			diverted = big.NewInt(0)
		}
		return assetIn, diverted
	}
	return assetOut, savings.ComputeDiversion(actualOut, sc.PercentageBps, sc.RoundUp, h.roundingUnit)
}

// enqueueConversion appends a DCA order for the freshly saved amount.
// Best-effort: failures become events, never settle errors.
func (h *Hook) enqueueConversion(ctx context.Context, user, sourceAsset common.Address, amount *big.Int, now time.Time) {
	cfg, ok, err := h.ledger.DCAConfig(ctx, user)
	if err == nil && (!ok || cfg.TargetAsset == (common.Address{})) {
		err = fmt.Errorf("%w: no dca target configured", types.ErrInvalidInput)
	}
	if err == nil && cfg.TargetAsset == sourceAsset {
		err = fmt.Errorf("%w: dca target equals savings asset", types.ErrInvalidInput)
	}

	if err == nil {
		ttl := cfg.OrderTTL
		if ttl <= 0 {
			ttl = defaultOrderTTL
		}
		err = h.queue.Enqueue(ctx, user, types.DCAOrder{
			SourceAsset: sourceAsset,
			TargetAsset: cfg.TargetAsset,
			Amount:      new(big.Int).Set(amount),
			Deadline:    now.Add(ttl),
			SlippageBps: cfg.SlippageBps,
		})
	}
	if err != nil {
		h.ledger.AppendEvent(types.Event{
			Type: types.EventDCAFailed,
			Attributes: map[string]string{
				"user":   user.Hex(),
				"source": sourceAsset.Hex(),
				"reason": err.Error(),
			},
		})
		h.logger.WithFields(logrus.Fields{
			"user": user.Hex(),
		}).WithError(err).Warn("fail to enqueue dca order")
	}
}
