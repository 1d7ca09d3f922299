package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/types"
)

func (b *Backend) GetDailyPlan(ctx context.Context, user, asset common.Address) (types.DailyContributionPlan, bool, error) {
	query := `
        SELECT enabled, daily_amount, goal_amount, current_amount, penalty_bps, end_time, last_execution
        FROM daily_plans
        WHERE user_address = $1 AND asset = $2`

	var (
		plan          types.DailyContributionPlan
		dailyAmount   string
		goalAmount    string
		currentAmount string
		penaltyBps    int32
		endTime       *time.Time
		lastExecution *time.Time
	)
	err := b.pool.QueryRow(ctx, query, user.Bytes(), asset.Bytes()).
		Scan(&plan.Enabled, &dailyAmount, &goalAmount, &currentAmount, &penaltyBps, &endTime, &lastExecution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.DailyContributionPlan{}, false, nil
		}
		return types.DailyContributionPlan{}, false, fmt.Errorf("fail to get daily plan: %w", err)
	}

	plan.PenaltyBps = uint16(penaltyBps)
	plan.EndTime = nullableToTime(endTime)
	plan.LastExecution = nullableToTime(lastExecution)
	if plan.DailyAmount, err = numericToBig(dailyAmount); err != nil {
		return types.DailyContributionPlan{}, false, fmt.Errorf("fail to parse daily amount: %w", err)
	}
	if plan.GoalAmount, err = numericToBig(goalAmount); err != nil {
		return types.DailyContributionPlan{}, false, fmt.Errorf("fail to parse goal amount: %w", err)
	}
	if plan.CurrentAmount, err = numericToBig(currentAmount); err != nil {
		return types.DailyContributionPlan{}, false, fmt.Errorf("fail to parse current amount: %w", err)
	}
	return plan, true, nil
}

func (b *Backend) SetDailyPlan(ctx context.Context, user, asset common.Address, plan types.DailyContributionPlan) error {
	query := `
        INSERT INTO daily_plans
        (user_address, asset, enabled, daily_amount, goal_amount, current_amount, penalty_bps, end_time, last_execution)
        VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)
        ON CONFLICT (user_address, asset) DO UPDATE SET
            enabled = EXCLUDED.enabled,
            daily_amount = EXCLUDED.daily_amount,
            goal_amount = EXCLUDED.goal_amount,
            current_amount = EXCLUDED.current_amount,
            penalty_bps = EXCLUDED.penalty_bps,
            end_time = EXCLUDED.end_time,
            last_execution = EXCLUDED.last_execution`

	_, err := b.pool.Exec(ctx, query,
		user.Bytes(),
		asset.Bytes(),
		plan.Enabled,
		bigToNumeric(plan.DailyAmount),
		bigToNumeric(plan.GoalAmount),
		bigToNumeric(plan.CurrentAmount),
		int32(plan.PenaltyBps),
		timeToNullable(plan.EndTime),
		timeToNullable(plan.LastExecution),
	)
	if err != nil {
		return fmt.Errorf("fail to set daily plan: %w", err)
	}
	return nil
}

func (b *Backend) ListPlanAssets(ctx context.Context, user common.Address) ([]common.Address, error) {
	query := `SELECT asset FROM daily_plans WHERE user_address = $1 ORDER BY asset`

	rows, err := b.pool.Query(ctx, query, user.Bytes())
	if err != nil {
		return nil, fmt.Errorf("fail to list plan assets: %w", err)
	}
	defer rows.Close()

	var assets []common.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("fail to scan plan asset: %w", err)
		}
		assets = append(assets, common.BytesToAddress(raw))
	}
	return assets, rows.Err()
}

func (b *Backend) ListPlanUsers(ctx context.Context) ([]common.Address, error) {
	query := `SELECT DISTINCT user_address FROM daily_plans ORDER BY user_address`

	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fail to list plan users: %w", err)
	}
	defer rows.Close()

	var users []common.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("fail to scan plan user: %w", err)
		}
		users = append(users, common.BytesToAddress(raw))
	}
	return users, rows.Err()
}
