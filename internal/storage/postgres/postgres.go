// Package postgres implements the storage ports on PostgreSQL with pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/platter/db"
	"github.com/xenking/platter/internal/domain/coupon"
	"github.com/xenking/platter/internal/domain/delivery"
	"github.com/xenking/platter/internal/domain/errs"
	"github.com/xenking/platter/internal/domain/menu"
	"github.com/xenking/platter/internal/domain/order"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ querier = (*pgxpool.Pool)(nil)
	_ querier = (pgx.Tx)(nil)
)

// Store owns the pool and hands out transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Tx binds every repository to one pgx transaction.
type Tx struct {
	q querier
}

var (
	_ order.Tx    = (*Tx)(nil)
	_ delivery.Tx = (*Tx)(nil)
)

func (t *Tx) Orders() order.Repository             { return &OrderRepository{q: t.q} }
func (t *Tx) Coupons() coupon.Repository           { return &CouponRepository{q: t.q} }
func (t *Tx) Deliveries() delivery.Repository      { return &DeliveryRepository{q: t.q} }
func (t *Tx) Couriers() delivery.CourierRepository { return &CourierRepository{q: t.q} }
func (t *Tx) Menu() menu.Repository                { return &MenuRepository{q: t.q} }

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	var fnErr error
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(ptx pgx.Tx) error {
		fnErr = fn(ctx, &Tx{q: ptx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		// Begin or commit failed.
		return errs.Storage("transaction", err)
	}
	return err
}

// OrderTransactor adapts s to order.Transactor.
func (s *Store) OrderTransactor() order.Transactor { return orderTransactor{s} }

// DeliveryTransactor adapts s to delivery.Transactor.
func (s *Store) DeliveryTransactor() delivery.Transactor { return deliveryTransactor{s} }

type orderTransactor struct{ s *Store }

func (o orderTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return o.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type deliveryTransactor struct{ s *Store }

func (d deliveryTransactor) InTx(ctx context.Context, fn func(ctx context.Context, tx delivery.Tx) error) error {
	return d.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}
