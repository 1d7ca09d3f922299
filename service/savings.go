// Package service is the user-facing surface of the savings protocol:
// strategy and DCA configuration, daily plan lifecycle, and withdrawals.
package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/daily"
	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
)

// StrategyRequest configures how much of each exchange is diverted.
type StrategyRequest struct {
	PercentageBps    uint16                 `json:"percentage_bps" validate:"lte=10000"`
	AutoIncrementBps uint16                 `json:"auto_increment_bps" validate:"lte=10000"`
	MaxPercentageBps uint16                 `json:"max_percentage_bps" validate:"lte=10000"`
	RoundUp          bool                   `json:"round_up"`
	DCAEnabled       bool                   `json:"dca_enabled"`
	TokenType        types.SavingsTokenType `json:"token_type" validate:"lte=2"`
}

// DCARequest configures the deferred-conversion target and tick gate.
type DCARequest struct {
	TargetAsset        common.Address `json:"target_asset" validate:"required"`
	SlippageBps        uint16         `json:"slippage_bps" validate:"lte=10000"`
	OrderTTL           time.Duration  `json:"order_ttl" validate:"gte=0"`
	OnlyImprovePrice   bool           `json:"only_improve_price"`
	MinTickImprovement int32          `json:"min_tick_improvement" validate:"gte=0"`
	TickExpiry         time.Duration  `json:"tick_expiry" validate:"gte=0"`
}

// DailyPlanRequest opens a scheduled contribution plan for one asset.
type DailyPlanRequest struct {
	Asset       common.Address `json:"asset" validate:"required"`
	DailyAmount *big.Int       `json:"daily_amount" validate:"required"`
	GoalAmount  *big.Int       `json:"goal_amount"`
	PenaltyBps  uint16         `json:"penalty_bps" validate:"lte=10000"`
	EndTime     time.Time      `json:"end_time"`
}

type SavingsService struct {
	ledger    *ledger.Ledger
	transfers daily.TransferService
	shares    daily.AssetLedger
	vault     common.Address
	actor     common.Address
	validate  *validator.Validate
	logger    *logrus.Logger
	now       func() time.Time

	assetIDs map[common.Address]uint64
}

func NewSavingsService(l *ledger.Ledger, transfers daily.TransferService, shares daily.AssetLedger, vault, actor common.Address, logger *logrus.Logger) (*SavingsService, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if transfers == nil {
		return nil, fmt.Errorf("transfer service cannot be nil")
	}
	if shares == nil {
		return nil, fmt.Errorf("asset ledger cannot be nil")
	}
	return &SavingsService{
		ledger:    l,
		transfers: transfers,
		shares:    shares,
		vault:     vault,
		actor:     actor,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
		assetIDs:  make(map[common.Address]uint64),
	}, nil
}

// ConfigureStrategy validates and writes the user's savings strategy.
func (s *SavingsService) ConfigureStrategy(ctx context.Context, user common.Address, req StrategyRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	cfg := types.UserConfig{
		PercentageBps:    req.PercentageBps,
		AutoIncrementBps: req.AutoIncrementBps,
		MaxPercentageBps: req.MaxPercentageBps,
		RoundUp:          req.RoundUp,
		DCAEnabled:       req.DCAEnabled,
		TokenType:        req.TokenType,
	}
	return s.ledger.SetUserConfig(ctx, s.actor, user, cfg)
}

// ConfigureDCA validates and writes the user's conversion config.
func (s *SavingsService) ConfigureDCA(ctx context.Context, user common.Address, req DCARequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	if req.TargetAsset == (common.Address{}) {
		return fmt.Errorf("%w: dca target asset cannot be zero", types.ErrInvalidInput)
	}
	cfg := types.DCAConfig{
		TargetAsset:        req.TargetAsset,
		SlippageBps:        req.SlippageBps,
		OrderTTL:           req.OrderTTL,
		OnlyImprovePrice:   req.OnlyImprovePrice,
		MinTickImprovement: req.MinTickImprovement,
		TickExpiry:         req.TickExpiry,
	}
	return s.ledger.SetDCAConfig(ctx, s.actor, user, cfg)
}

// CreateDailyPlan opens a contribution plan. The last-execution timestamp is
// anchored at creation, so the first contribution accrues after a full day.
func (s *SavingsService) CreateDailyPlan(ctx context.Context, user common.Address, req DailyPlanRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
	}
	if req.DailyAmount.Sign() <= 0 {
		return fmt.Errorf("%w: daily amount must be positive", types.ErrInvalidInput)
	}

	now := s.now().UTC()
	if !req.EndTime.IsZero() && !req.EndTime.After(now) {
		return fmt.Errorf("%w: plan end time must be in the future", types.ErrInvalidInput)
	}

	goal := big.NewInt(0)
	if req.GoalAmount != nil {
		if req.GoalAmount.Sign() < 0 {
			return fmt.Errorf("%w: goal amount must be non-negative", types.ErrInvalidInput)
		}
		goal = new(big.Int).Set(req.GoalAmount)
	}

	plan := types.DailyContributionPlan{
		Enabled:       true,
		DailyAmount:   new(big.Int).Set(req.DailyAmount),
		GoalAmount:    goal,
		CurrentAmount: big.NewInt(0),
		PenaltyBps:    req.PenaltyBps,
		EndTime:       req.EndTime,
		LastExecution: now,
	}
	if err := s.ledger.SetDailyPlan(ctx, s.actor, user, req.Asset, plan); err != nil {
		return err
	}

	s.ledger.AppendEvent(types.Event{
		Type: types.EventPlanCreated,
		Attributes: map[string]string{
			"user":  user.Hex(),
			"asset": req.Asset.Hex(),
			"daily": plan.DailyAmount.String(),
			"goal":  plan.GoalAmount.String(),
		},
	})
	return nil
}

// CancelDailyPlan terminates a plan and returns the accumulated amount to
// the user. Cancelling before the goal is reached forfeits the configured
// penalty fraction to the treasury.
func (s *SavingsService) CancelDailyPlan(ctx context.Context, user, asset common.Address) error {
	plan, ok, err := s.ledger.DailyPlan(ctx, user, asset)
	if err != nil {
		return fmt.Errorf("fail to load daily plan: %w", err)
	}
	if !ok || !plan.Enabled {
		return fmt.Errorf("%w: no active plan for asset", types.ErrInvalidInput)
	}

	accumulated := plan.CurrentAmount
	refund := new(big.Int).Set(accumulated)
	penalty := big.NewInt(0)
	if plan.PenaltyBps > 0 && !plan.GoalReached() && accumulated.Sign() > 0 {
		penalty = new(big.Int).Mul(accumulated, big.NewInt(int64(plan.PenaltyBps)))
		penalty.Div(penalty, big.NewInt(types.MaxBasisPoints))
		refund.Sub(refund, penalty)
	}

	if refund.Sign() > 0 {
		if err := s.transfers.TransferFrom(ctx, s.vault, user, asset, refund); err != nil {
			return fmt.Errorf("%w: %v", types.ErrWithdrawalFailed, err)
		}
	}
	if accumulated.Sign() > 0 {
		if err := s.burnShares(ctx, user, asset, accumulated); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user": user.Hex(), "asset": asset.Hex(),
			}).Error("fail to burn plan shares")
		}
	}
	if penalty.Sign() > 0 {
		if err := s.ledger.CreditTreasury(ctx, s.actor, asset, penalty); err != nil {
			return fmt.Errorf("fail to credit cancellation penalty: %w", err)
		}
	}

	plan.Enabled = false
	if err := s.ledger.SetDailyPlan(ctx, s.actor, user, asset, plan); err != nil {
		return fmt.Errorf("fail to disable daily plan: %w", err)
	}

	s.ledger.AppendEvent(types.Event{
		Type: types.EventPlanStopped,
		Attributes: map[string]string{
			"user":    user.Hex(),
			"asset":   asset.Hex(),
			"refund":  refund.String(),
			"penalty": penalty.String(),
		},
	})
	return nil
}

// Withdraw moves saved funds back to the user and debits the savings
// record. The balance is checked up front and the external transfer happens
// before the debit, so a failure on either side leaves the record untouched;
// calls are serialized by the host, so nothing changes in between.
func (s *SavingsService) Withdraw(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", types.ErrInvalidInput)
	}

	rec, err := s.ledger.SavingsRecord(ctx, user, asset)
	if err != nil {
		return fmt.Errorf("fail to load savings record: %w", err)
	}
	now := s.now().UTC()
	if !rec.UnlockedAt.IsZero() && now.Before(rec.UnlockedAt) {
		return fmt.Errorf("%w: savings locked until %s", types.ErrWithdrawalFailed, rec.UnlockedAt.Format(time.RFC3339))
	}
	if rec.Balance.Cmp(amount) < 0 {
		return types.ErrInsufficientSavings
	}

	if err := s.transfers.TransferFrom(ctx, s.vault, user, asset, amount); err != nil {
		return fmt.Errorf("%w: %v", types.ErrWithdrawalFailed, err)
	}
	if err := s.ledger.DebitSavings(ctx, s.actor, user, asset, amount); err != nil {
		return fmt.Errorf("fail to debit savings after transfer: %w", err)
	}

	s.ledger.AppendEvent(types.Event{
		Type: types.EventWithdrawal,
		Attributes: map[string]string{
			"user":   user.Hex(),
			"asset":  asset.Hex(),
			"amount": amount.String(),
		},
	})
	return nil
}

// LockSavings sets the withdrawal unlock time for a (user, asset) record.
func (s *SavingsService) LockSavings(ctx context.Context, user, asset common.Address, until time.Time) error {
	if until.Before(s.now().UTC()) {
		return fmt.Errorf("%w: unlock time must be in the future", types.ErrInvalidInput)
	}
	return s.ledger.SetSavingsUnlock(ctx, s.actor, user, asset, until)
}

// WithdrawTreasury moves accrued protocol fees to a recipient. Owner only,
// enforced by the ledger; a failed transfer restores the treasury balance.
func (s *SavingsService) WithdrawTreasury(ctx context.Context, caller, recipient, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", types.ErrInvalidInput)
	}
	if err := s.ledger.WithdrawTreasury(ctx, caller, asset, amount); err != nil {
		return err
	}
	if err := s.transfers.TransferFrom(ctx, s.vault, recipient, asset, amount); err != nil {
		if restoreErr := s.ledger.CreditTreasury(ctx, s.actor, asset, amount); restoreErr != nil {
			s.logger.WithError(restoreErr).Error("fail to restore treasury balance")
		}
		return fmt.Errorf("%w: %v", types.ErrWithdrawalFailed, err)
	}
	return nil
}

func (s *SavingsService) burnShares(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	id, ok := s.assetIDs[asset]
	if !ok {
		var err error
		id, err = s.shares.RegisterAsset(ctx, asset)
		if err != nil {
			return fmt.Errorf("fail to register asset: %w", err)
		}
		s.assetIDs[asset] = id
	}
	return s.shares.Burn(ctx, user, id, amount)
}
