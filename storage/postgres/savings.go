package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/types"
)

func (b *Backend) GetSavingsRecord(ctx context.Context, user, asset common.Address) (types.SavingsRecord, bool, error) {
	query := `
        SELECT balance, total_saved, last_saved, unlocked_at
        FROM savings_records
        WHERE user_address = $1 AND asset = $2`

	var (
		balance    string
		totalSaved string
		lastSaved  *time.Time
		unlockedAt *time.Time
	)
	err := b.pool.QueryRow(ctx, query, user.Bytes(), asset.Bytes()).Scan(&balance, &totalSaved, &lastSaved, &unlockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewSavingsRecord(), false, nil
		}
		return types.SavingsRecord{}, false, fmt.Errorf("fail to get savings record: %w", err)
	}

	rec := types.SavingsRecord{
		LastSaved:  nullableToTime(lastSaved),
		UnlockedAt: nullableToTime(unlockedAt),
	}
	if rec.Balance, err = numericToBig(balance); err != nil {
		return types.SavingsRecord{}, false, fmt.Errorf("fail to parse balance: %w", err)
	}
	if rec.TotalSaved, err = numericToBig(totalSaved); err != nil {
		return types.SavingsRecord{}, false, fmt.Errorf("fail to parse total saved: %w", err)
	}
	return rec, true, nil
}

// CreditSavings credits the user's record and the treasury inside one
// database transaction; either both rows change or neither does.
func (b *Backend) CreditSavings(ctx context.Context, user, asset common.Address, net, fee *big.Int, now time.Time) error {
	if net == nil || fee == nil || net.Sign() < 0 || fee.Sign() < 0 {
		return fmt.Errorf("%w: credit amounts must be non-negative", types.ErrInvalidInput)
	}

	return b.withTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		recordQuery := `
            INSERT INTO savings_records (user_address, asset, balance, total_saved, last_saved)
            VALUES ($1, $2, $3::numeric, $3::numeric, $4)
            ON CONFLICT (user_address, asset) DO UPDATE SET
                balance = savings_records.balance + EXCLUDED.balance,
                total_saved = savings_records.total_saved + EXCLUDED.total_saved,
                last_saved = EXCLUDED.last_saved`

		if _, err := tx.Exec(ctx, recordQuery, user.Bytes(), asset.Bytes(), bigToNumeric(net), now.UTC()); err != nil {
			return fmt.Errorf("fail to credit savings record: %w", err)
		}

		if fee.Sign() > 0 {
			treasuryQuery := `
                INSERT INTO treasury_balances (asset, balance)
                VALUES ($1, $2::numeric)
                ON CONFLICT (asset) DO UPDATE SET
                    balance = treasury_balances.balance + EXCLUDED.balance`

			if _, err := tx.Exec(ctx, treasuryQuery, asset.Bytes(), bigToNumeric(fee)); err != nil {
				return fmt.Errorf("fail to credit treasury: %w", err)
			}
		}
		return nil
	})
}

func (b *Backend) DebitSavings(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: debit amount must be non-negative", types.ErrInvalidInput)
	}

	query := `
        UPDATE savings_records
        SET balance = balance - $3::numeric
        WHERE user_address = $1 AND asset = $2 AND balance >= $3::numeric`

	tag, err := b.pool.Exec(ctx, query, user.Bytes(), asset.Bytes(), bigToNumeric(amount))
	if err != nil {
		return fmt.Errorf("fail to debit savings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrInsufficientSavings
	}
	return nil
}

func (b *Backend) SetSavingsUnlock(ctx context.Context, user, asset common.Address, unlockedAt time.Time) error {
	query := `
        INSERT INTO savings_records (user_address, asset, balance, total_saved, unlocked_at)
        VALUES ($1, $2, 0, 0, $3)
        ON CONFLICT (user_address, asset) DO UPDATE SET unlocked_at = EXCLUDED.unlocked_at`

	if _, err := b.pool.Exec(ctx, query, user.Bytes(), asset.Bytes(), timeToNullable(unlockedAt)); err != nil {
		return fmt.Errorf("fail to set savings unlock: %w", err)
	}
	return nil
}

func (b *Backend) ListSavingsAssets(ctx context.Context, user common.Address) ([]common.Address, error) {
	query := `SELECT asset FROM savings_records WHERE user_address = $1 ORDER BY asset`

	rows, err := b.pool.Query(ctx, query, user.Bytes())
	if err != nil {
		return nil, fmt.Errorf("fail to list savings assets: %w", err)
	}
	defer rows.Close()

	var assets []common.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("fail to scan asset: %w", err)
		}
		assets = append(assets, common.BytesToAddress(raw))
	}
	return assets, rows.Err()
}
