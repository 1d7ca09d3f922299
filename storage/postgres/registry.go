package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/types"
)

func (b *Backend) TreasuryBalance(ctx context.Context, asset common.Address) (*big.Int, error) {
	query := `SELECT balance FROM treasury_balances WHERE asset = $1`

	var balance string
	err := b.pool.QueryRow(ctx, query, asset.Bytes()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("fail to get treasury balance: %w", err)
	}
	return numericToBig(balance)
}

func (b *Backend) CreditTreasury(ctx context.Context, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: treasury credit must be non-negative", types.ErrInvalidInput)
	}

	query := `
        INSERT INTO treasury_balances (asset, balance)
        VALUES ($1, $2::numeric)
        ON CONFLICT (asset) DO UPDATE SET balance = treasury_balances.balance + EXCLUDED.balance`

	if _, err := b.pool.Exec(ctx, query, asset.Bytes(), bigToNumeric(amount)); err != nil {
		return fmt.Errorf("fail to credit treasury: %w", err)
	}
	return nil
}

func (b *Backend) DebitTreasury(ctx context.Context, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: treasury debit must be non-negative", types.ErrInvalidInput)
	}

	query := `
        UPDATE treasury_balances
        SET balance = balance - $2::numeric
        WHERE asset = $1 AND balance >= $2::numeric`

	tag, err := b.pool.Exec(ctx, query, asset.Bytes(), bigToNumeric(amount))
	if err != nil {
		return fmt.Errorf("fail to debit treasury: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrInsufficientBalance
	}
	return nil
}

func (b *Backend) GetModule(ctx context.Context, id types.ModuleID) (common.Address, bool, error) {
	query := `SELECT caller FROM modules WHERE id = $1`

	var raw []byte
	err := b.pool.QueryRow(ctx, query, string(id)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, fmt.Errorf("fail to get module: %w", err)
	}
	return common.BytesToAddress(raw), true, nil
}

func (b *Backend) SetModule(ctx context.Context, id types.ModuleID, caller common.Address) error {
	query := `
        INSERT INTO modules (id, caller)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET caller = EXCLUDED.caller`

	if _, err := b.pool.Exec(ctx, query, string(id), caller.Bytes()); err != nil {
		return fmt.Errorf("fail to set module: %w", err)
	}
	return nil
}

func (b *Backend) Modules(ctx context.Context) ([]types.ModuleEntry, error) {
	query := `SELECT id, caller FROM modules ORDER BY id`

	rows, err := b.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fail to list modules: %w", err)
	}
	defer rows.Close()

	var entries []types.ModuleEntry
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("fail to scan module: %w", err)
		}
		entries = append(entries, types.ModuleEntry{ID: types.ModuleID(id), Caller: common.BytesToAddress(raw)})
	}
	return entries, rows.Err()
}

func (b *Backend) GetProtocolMeta(ctx context.Context) (types.ProtocolMeta, bool, error) {
	query := `SELECT owner, hook, treasury_fee_bps FROM protocol_meta WHERE singleton`

	var (
		owner  []byte
		hook   []byte
		feeBps int32
	)
	err := b.pool.QueryRow(ctx, query).Scan(&owner, &hook, &feeBps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ProtocolMeta{}, false, nil
		}
		return types.ProtocolMeta{}, false, fmt.Errorf("fail to get protocol meta: %w", err)
	}
	return types.ProtocolMeta{
		Owner:          common.BytesToAddress(owner),
		Hook:           common.BytesToAddress(hook),
		TreasuryFeeBps: uint16(feeBps),
	}, true, nil
}

func (b *Backend) SetProtocolMeta(ctx context.Context, meta types.ProtocolMeta) error {
	query := `
        INSERT INTO protocol_meta (singleton, owner, hook, treasury_fee_bps)
        VALUES (TRUE, $1, $2, $3)
        ON CONFLICT (singleton) DO UPDATE SET
            owner = EXCLUDED.owner,
            hook = EXCLUDED.hook,
            treasury_fee_bps = EXCLUDED.treasury_fee_bps`

	if _, err := b.pool.Exec(ctx, query, meta.Owner.Bytes(), meta.Hook.Bytes(), int32(meta.TreasuryFeeBps)); err != nil {
		return fmt.Errorf("fail to set protocol meta: %w", err)
	}
	return nil
}
