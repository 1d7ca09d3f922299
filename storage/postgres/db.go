// Package postgres persists ledger state in PostgreSQL. It is the durable
// counterpart of storage/memory and implements the same storage.Store
// surface; user configurations are stored as the packed codec word so both
// backends share one record layout.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*
var embeddedMigrations embed.FS

type Backend struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewBackend(dsn string, logger *logrus.Logger) (*Backend, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("fail to open database: %w", err)
	}

	backend := &Backend{pool: pool, logger: logger}
	if err := backend.Migrate(); err != nil {
		return nil, fmt.Errorf("fail to migrate database: %w", err)
	}

	return backend, nil
}

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func (b *Backend) Migrate() error {
	b.logger.Info("starting database migration")
	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("fail to set goose dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(b.pool)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("fail to run goose up: %w", err)
	}
	b.logger.Info("database migration completed")
	return nil
}

func (b *Backend) Pool() *pgxpool.Pool {
	return b.pool
}

func (b *Backend) withTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fail to begin transaction: %w", err)
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("fail to commit transaction: %w", err)
	}

	return nil
}
