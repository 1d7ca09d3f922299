package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/spendsave/savings-engine/internal/codec"
	"github.com/spendsave/savings-engine/internal/types"
)

func (b *Backend) GetUserConfig(ctx context.Context, user common.Address) (types.UserConfig, bool, error) {
	query := `SELECT packed FROM user_configs WHERE user_address = $1`

	var packed []byte
	err := b.pool.QueryRow(ctx, query, user.Bytes()).Scan(&packed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.UserConfig{}, false, nil
		}
		return types.UserConfig{}, false, fmt.Errorf("fail to get user config: %w", err)
	}

	var word uint256.Int
	word.SetBytes(packed)
	return codec.UnpackUserConfig(word), true, nil
}

func (b *Backend) SetUserConfig(ctx context.Context, user common.Address, cfg types.UserConfig) error {
	word := codec.PackUserConfig(cfg)

	query := `
        INSERT INTO user_configs (user_address, packed)
        VALUES ($1, $2)
        ON CONFLICT (user_address) DO UPDATE SET packed = EXCLUDED.packed`

	if _, err := b.pool.Exec(ctx, query, user.Bytes(), word.Bytes()); err != nil {
		return fmt.Errorf("fail to set user config: %w", err)
	}
	return nil
}
