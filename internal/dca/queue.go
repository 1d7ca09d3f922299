// Package dca maintains each user's queue of pending conversions and the
// tick-strategy gate that decides when an order may execute.
package dca

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
)

// QuoteService supplies current price ticks. Read-only; the gate never
// mutates state through it.
type QuoteService interface {
	CurrentTick(ctx context.Context, base, quote common.Address) (int32, error)
}

type Queue struct {
	ledger *ledger.Ledger
	actor  common.Address
	quotes QuoteService
	logger *logrus.Logger
	now    func() time.Time
}

func NewQueue(l *ledger.Ledger, actor common.Address, quotes QuoteService, logger *logrus.Logger) *Queue {
	return &Queue{
		ledger: l,
		actor:  actor,
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue appends a pending order after validating it. The enqueue-time
// tick is captured so the gate can measure movement later.
func (q *Queue) Enqueue(ctx context.Context, user common.Address, order types.DCAOrder) error {
	now := q.now().UTC()

	if order.Amount == nil || order.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: order amount must be positive", types.ErrInvalidInput)
	}
	if !order.Deadline.After(now) {
		return fmt.Errorf("%w: order deadline must be in the future", types.ErrInvalidInput)
	}
	if order.SourceAsset == order.TargetAsset {
		return fmt.Errorf("%w: source and target assets are the same", types.ErrInvalidInput)
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = now
	if q.quotes != nil {
		tick, err := q.quotes.CurrentTick(ctx, order.SourceAsset, order.TargetAsset)
		if err != nil {
			// A missing quote only disables the price gate for this
			// order; enqueueing still proceeds.
			q.logger.WithFields(logrus.Fields{
				"user": user.Hex(),
			}).WithError(err).Warn("fail to capture enqueue tick")
		} else {
			order.ExecutionTick = tick
		}
	}

	if err := q.ledger.AppendDCAOrder(ctx, q.actor, user, order); err != nil {
		return fmt.Errorf("fail to enqueue dca order: %w", err)
	}

	q.ledger.AppendEvent(types.Event{
		Type: types.EventDCAEnqueued,
		Attributes: map[string]string{
			"user":   user.Hex(),
			"order":  order.ID.String(),
			"amount": order.Amount.String(),
			"source": order.SourceAsset.Hex(),
			"target": order.TargetAsset.Hex(),
		},
	})
	return nil
}

// MarkExecuted flags the order at index as consumed. Idempotent: a second
// call observes the same state as the first.
func (q *Queue) MarkExecuted(ctx context.Context, user common.Address, index int) error {
	if err := q.ledger.MarkDCAExecuted(ctx, q.actor, user, index); err != nil {
		return err
	}
	q.ledger.AppendEvent(types.Event{
		Type: types.EventDCAExecuted,
		Attributes: map[string]string{
			"user":  user.Hex(),
			"index": fmt.Sprintf("%d", index),
		},
	})
	return nil
}

// PendingOrders filters the queue down to live orders: not executed and not
// past deadline. A pure read, O(n) in queue length; queues stay short
// because executed orders stop accumulating work.
func (q *Queue) PendingOrders(ctx context.Context, user common.Address) ([]types.DCAOrder, error) {
	orders, err := q.ledger.DCAOrders(ctx, user)
	if err != nil {
		return nil, err
	}

	now := q.now().UTC()
	var pending []types.DCAOrder
	for _, order := range orders {
		if !order.Executed && order.Deadline.After(now) {
			pending = append(pending, order)
		}
	}
	return pending, nil
}

// EligibleOrders returns the pending orders that pass the user's tick gate.
func (q *Queue) EligibleOrders(ctx context.Context, user common.Address) ([]types.DCAOrder, error) {
	pending, err := q.PendingOrders(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	cfg, hasConfig, err := q.ledger.DCAConfig(ctx, user)
	if err != nil {
		return nil, err
	}

	now := q.now().UTC()
	var eligible []types.DCAOrder
	for _, order := range pending {
		ok, err := q.orderEligible(ctx, order, cfg, hasConfig, now)
		if err != nil {
			return nil, err
		}
		if ok {
			eligible = append(eligible, order)
		}
	}
	return eligible, nil
}

// orderEligible applies the tick gate: an order may execute when the price
// has moved favorably by at least the minimum improvement since enqueue, or
// when the expiry window has elapsed. The expiry arm keeps orders from
// starving when the price never improves.
func (q *Queue) orderEligible(ctx context.Context, order types.DCAOrder, cfg types.DCAConfig, hasConfig bool, now time.Time) (bool, error) {
	if !hasConfig || !cfg.OnlyImprovePrice {
		return true, nil
	}
	if cfg.TickExpiry > 0 && !order.CreatedAt.IsZero() && now.Sub(order.CreatedAt) >= cfg.TickExpiry {
		return true, nil
	}
	if q.quotes == nil {
		return false, nil
	}

	current, err := q.quotes.CurrentTick(ctx, order.SourceAsset, order.TargetAsset)
	if err != nil {
		return false, fmt.Errorf("fail to read current tick: %w", err)
	}

	// A lower tick means the target asset got cheaper in source terms, so
	// improvement is measured downward from the enqueue tick.
	return current <= order.ExecutionTick-cfg.MinTickImprovement, nil
}
