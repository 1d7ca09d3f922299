// Package savings computes diversions and fee splits and commits them to
// the ledger.
package savings

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/spendsave/savings-engine/internal/ledger"
	"github.com/spendsave/savings-engine/internal/types"
)

var bpsDenominator = big.NewInt(types.MaxBasisPoints)

// ComputeDiversion returns amount * percentageBps / 10000, rounded down.
// With roundUp set, the result is rounded up to the given rounding unit but
// never past the exchanged amount itself. Zero amounts and zero percentages
// divert nothing; 10000 bps diverts everything.
func ComputeDiversion(amount *big.Int, percentageBps uint16, roundUp bool, roundingUnit *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || percentageBps == 0 {
		return big.NewInt(0)
	}

	diverted := new(big.Int).Mul(amount, big.NewInt(int64(percentageBps)))
	diverted.Div(diverted, bpsDenominator)

	if roundUp && roundingUnit != nil && roundingUnit.Sign() > 0 {
		rem := new(big.Int).Mod(diverted, roundingUnit)
		if rem.Sign() > 0 {
			diverted.Add(diverted, new(big.Int).Sub(roundingUnit, rem))
		}
		if diverted.Cmp(amount) > 0 {
			diverted.Set(amount)
		}
	}
	return diverted
}

// ApplyTreasuryFee splits a diverted amount into the user's net credit and
// the protocol fee. net + fee == diverted holds exactly for all inputs; the
// fee cap is enforced at configuration time, not here.
func ApplyTreasuryFee(diverted *big.Int, feeBps uint16) (net, fee *big.Int) {
	if diverted == nil || diverted.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}

	fee = new(big.Int).Mul(diverted, big.NewInt(int64(feeBps)))
	fee.Div(fee, bpsDenominator)
	net = new(big.Int).Sub(diverted, fee)
	return net, fee
}

// Engine commits computed diversions through the ledger under the identity
// of the component that owns it (the hook orchestrator in production).
type Engine struct {
	ledger *ledger.Ledger
	actor  common.Address
	logger *logrus.Logger
}

func NewEngine(l *ledger.Ledger, actor common.Address, logger *logrus.Logger) *Engine {
	return &Engine{ledger: l, actor: actor, logger: logger}
}

// Commit credits the fee split of a diverted amount: net to the user's
// savings record, fee to the treasury, in one ledger transaction. It returns
// the net amount credited.
func (e *Engine) Commit(ctx context.Context, user, asset common.Address, diverted *big.Int, now time.Time) (*big.Int, error) {
	if diverted == nil || diverted.Sign() < 0 {
		return nil, fmt.Errorf("%w: diverted amount must be non-negative", types.ErrInvalidInput)
	}
	if diverted.Sign() == 0 {
		return big.NewInt(0), nil
	}

	net, fee := ApplyTreasuryFee(diverted, e.ledger.TreasuryFeeBps())
	if err := e.ledger.CreditSavings(ctx, e.actor, user, asset, net, fee, now); err != nil {
		return nil, fmt.Errorf("fail to commit diversion: %w", err)
	}

	e.ledger.AppendEvent(types.Event{
		Type: types.EventSaved,
		Attributes: map[string]string{
			"user":  user.Hex(),
			"asset": asset.Hex(),
			"gross": diverted.String(),
			"net":   net.String(),
			"fee":   fee.String(),
		},
	})
	if fee.Sign() > 0 {
		e.ledger.AppendEvent(types.Event{
			Type: types.EventTreasuryFee,
			Attributes: map[string]string{
				"asset": asset.Hex(),
				"fee":   fee.String(),
			},
		})
	}

	e.logger.WithFields(logrus.Fields{
		"user":  user.Hex(),
		"asset": asset.Hex(),
		"net":   net.String(),
		"fee":   fee.String(),
	}).Debug("diversion committed")
	return net, nil
}
