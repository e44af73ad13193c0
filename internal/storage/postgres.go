package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/matrixise/survey-gate/internal/balance"
)

var ErrUserNotFound = errors.New("user not found")

// Store manages PostgreSQL operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store with connection pooling
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// NUMERIC columns scan into decimal.Decimal
	config.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertUserBalance records the last-known balance of a wallet, creating the
// user on first login. An empty country keeps the stored one. The balance
// columns only move forward in time; the country is always applied.
func (s *Store) UpsertUserBalance(ctx context.Context, address, country string, snap balance.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (address, country, native_balance, total_usd_value, balance_updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			country            = COALESCE(NULLIF(EXCLUDED.country, ''), users.country),
			native_balance     = CASE WHEN `+newerBalance+` THEN EXCLUDED.native_balance ELSE users.native_balance END,
			total_usd_value    = CASE WHEN `+newerBalance+` THEN EXCLUDED.total_usd_value ELSE users.total_usd_value END,
			balance_updated_at = CASE WHEN `+newerBalance+` THEN EXCLUDED.balance_updated_at ELSE users.balance_updated_at END,
			updated_at         = now()`,
		address, country, snap.NativeBalance(), snap.TotalUSDValue, snap.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", address, err)
	}
	return nil
}

const newerBalance = `(users.balance_updated_at IS NULL OR users.balance_updated_at <= EXCLUDED.balance_updated_at)`

const userColumns = `address, country, native_balance, total_usd_value, balance_updated_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.Address, &u.Country, &u.NativeBalance, &u.TotalUSDValue, &u.BalanceUpdatedAt, &u.CreatedAt)
	return u, err
}

// GetUser returns the user record of address
func (s *Store) GetUser(ctx context.Context, address string) (User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE address = $1`, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, address)
		}
		return User{}, fmt.Errorf("failed to get user %s: %w", address, err)
	}
	return u, nil
}

// ListUsers returns every user, oldest first
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

// ListStaleUsers returns the addresses whose balance is older than olderThan
// or was never recorded
func (s *Store) ListStaleUsers(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address FROM users
		WHERE balance_updated_at IS NULL OR balance_updated_at < $1
		ORDER BY balance_updated_at NULLS FIRST
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale users: %w", err)
	}

	addrs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale users: %w", err)
	}
	return addrs, nil
}

// BatchInsertBalances inserts multiple token balances using pgx.Batch
func (s *Store) BatchInsertBalances(ctx context.Context, balances []TokenBalance) error {
	if len(balances) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, bal := range balances {
		batch.Queue(`
			INSERT INTO token_balances
			(queried_at, wallet, symbol, balance, usd_value, price_usd)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			bal.QueriedAt,
			bal.Wallet,
			bal.Symbol,
			bal.Balance,
			bal.USDValue,
			bal.PriceUSD,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range balances {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
	}

	return nil
}

// BalanceHistory returns the recorded positions of wallet since the given time, newest first
func (s *Store) BalanceHistory(ctx context.Context, wallet string, since time.Time) ([]TokenBalance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, queried_at, wallet, symbol, balance, usd_value, price_usd
		FROM token_balances
		WHERE wallet = $1 AND queried_at >= $2
		ORDER BY queried_at DESC, symbol`, wallet, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query balance history: %w", err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TokenBalance, error) {
		var tb TokenBalance
		err := row.Scan(&tb.ID, &tb.QueriedAt, &tb.Wallet, &tb.Symbol, &tb.Balance, &tb.USDValue, &tb.PriceUSD)
		return tb, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance history: %w", err)
	}
	return history, nil
}

// PruneBalances deletes history rows older than cutoff
func (s *Store) PruneBalances(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM token_balances WHERE queried_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune balances: %w", err)
	}
	return tag.RowsAffected(), nil
}
