package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/types"
)

func (b *Backend) AppendDCAOrder(ctx context.Context, user common.Address, order types.DCAOrder) error {
	return b.withTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var next int
		countQuery := `SELECT COALESCE(MAX(idx) + 1, 0) FROM dca_orders WHERE user_address = $1`
		if err := tx.QueryRow(ctx, countQuery, user.Bytes()).Scan(&next); err != nil {
			return fmt.Errorf("fail to get next order index: %w", err)
		}

		id := order.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		insertQuery := `
            INSERT INTO dca_orders
            (id, user_address, idx, source_asset, target_asset, amount, execution_tick, deadline, created_at, executed, slippage_bps)
            VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11)`

		_, err := tx.Exec(ctx, insertQuery,
			id,
			user.Bytes(),
			next,
			order.SourceAsset.Bytes(),
			order.TargetAsset.Bytes(),
			bigToNumeric(order.Amount),
			order.ExecutionTick,
			order.Deadline.UTC(),
			order.CreatedAt.UTC(),
			order.Executed,
			int32(order.SlippageBps),
		)
		if err != nil {
			return fmt.Errorf("fail to insert dca order: %w", err)
		}
		return nil
	})
}

func (b *Backend) DCAOrders(ctx context.Context, user common.Address) ([]types.DCAOrder, error) {
	query := `
        SELECT id, source_asset, target_asset, amount, execution_tick, deadline, created_at, executed, slippage_bps
        FROM dca_orders
        WHERE user_address = $1
        ORDER BY idx`

	rows, err := b.pool.Query(ctx, query, user.Bytes())
	if err != nil {
		return nil, fmt.Errorf("fail to query dca orders: %w", err)
	}
	defer rows.Close()

	var orders []types.DCAOrder
	for rows.Next() {
		var (
			o           types.DCAOrder
			source      []byte
			target      []byte
			amount      string
			deadline    time.Time
			createdAt   time.Time
			slippageBps int32
		)
		if err := rows.Scan(&o.ID, &source, &target, &amount, &o.ExecutionTick, &deadline, &createdAt, &o.Executed, &slippageBps); err != nil {
			return nil, fmt.Errorf("fail to scan dca order: %w", err)
		}
		o.SourceAsset = common.BytesToAddress(source)
		o.TargetAsset = common.BytesToAddress(target)
		o.Deadline = deadline.UTC()
		o.CreatedAt = createdAt.UTC()
		o.SlippageBps = uint16(slippageBps)
		if o.Amount, err = numericToBig(amount); err != nil {
			return nil, fmt.Errorf("fail to parse order amount: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (b *Backend) MarkDCAExecuted(ctx context.Context, user common.Address, index int) error {
	if index < 0 {
		return types.ErrIndexOutOfBounds
	}

	query := `UPDATE dca_orders SET executed = TRUE WHERE user_address = $1 AND idx = $2`
	tag, err := b.pool.Exec(ctx, query, user.Bytes(), index)
	if err != nil {
		return fmt.Errorf("fail to mark dca order executed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrIndexOutOfBounds
	}
	return nil
}

func (b *Backend) GetDCAConfig(ctx context.Context, user common.Address) (types.DCAConfig, bool, error) {
	query := `
        SELECT target_asset, slippage_bps, order_ttl_seconds, only_improve_price, min_tick_improvement, tick_expiry_seconds
        FROM dca_configs
        WHERE user_address = $1`

	var (
		cfg           types.DCAConfig
		target        []byte
		slippageBps   int32
		ttlSeconds    int64
		expirySeconds int64
	)
	err := b.pool.QueryRow(ctx, query, user.Bytes()).
		Scan(&target, &slippageBps, &ttlSeconds, &cfg.OnlyImprovePrice, &cfg.MinTickImprovement, &expirySeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.DCAConfig{}, false, nil
		}
		return types.DCAConfig{}, false, fmt.Errorf("fail to get dca config: %w", err)
	}
	cfg.TargetAsset = common.BytesToAddress(target)
	cfg.SlippageBps = uint16(slippageBps)
	cfg.OrderTTL = time.Duration(ttlSeconds) * time.Second
	cfg.TickExpiry = time.Duration(expirySeconds) * time.Second
	return cfg, true, nil
}

func (b *Backend) SetDCAConfig(ctx context.Context, user common.Address, cfg types.DCAConfig) error {
	query := `
        INSERT INTO dca_configs
        (user_address, target_asset, slippage_bps, order_ttl_seconds, only_improve_price, min_tick_improvement, tick_expiry_seconds)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_address) DO UPDATE SET
            target_asset = EXCLUDED.target_asset,
            slippage_bps = EXCLUDED.slippage_bps,
            order_ttl_seconds = EXCLUDED.order_ttl_seconds,
            only_improve_price = EXCLUDED.only_improve_price,
            min_tick_improvement = EXCLUDED.min_tick_improvement,
            tick_expiry_seconds = EXCLUDED.tick_expiry_seconds`

	_, err := b.pool.Exec(ctx, query,
		user.Bytes(),
		cfg.TargetAsset.Bytes(),
		int32(cfg.SlippageBps),
		int64(cfg.OrderTTL/time.Second),
		cfg.OnlyImprovePrice,
		cfg.MinTickImprovement,
		int64(cfg.TickExpiry/time.Second),
	)
	if err != nil {
		return fmt.Errorf("fail to set dca config: %w", err)
	}
	return nil
}
