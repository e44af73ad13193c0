// Package refresh keeps the recorded balances of known users current.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 500
	defaultConcurrency = 4
)

// Snapshots recomputes a wallet snapshot, bypassing the cache
type Snapshots interface {
	Refresh(ctx context.Context, address string) (balance.Snapshot, error)
}

// Store lists stale users and records their new balances
type Store interface {
	ListStaleUsers(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	UpsertUserBalance(ctx context.Context, address, country string, snap balance.Snapshot) error
	BatchInsertBalances(ctx context.Context, balances []storage.TokenBalance) error
}

// Options tune a refresh run
type Options struct {
	// StaleAfter selects users whose balance is older than this.
	StaleAfter  time.Duration
	BatchSize   int
	Concurrency int
}

// Result summarizes one run
type Result struct {
	Refreshed int
	Failed    int
}

// Job refreshes stale user balances. A failing wallet is logged and skipped;
// the run only fails when the user list cannot be read.
type Job struct {
	snapshots Snapshots
	store     Store
	opts      Options
	nowFn     func() time.Time
}

// NewJob creates a refresh job
func NewJob(snapshots Snapshots, store Store, opts Options) *Job {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = balance.DefaultCacheTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Job{snapshots: snapshots, store: store, opts: opts, nowFn: time.Now}
}

// Run refreshes one batch of stale users
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := j.nowFn()
	addrs, err := j.store.ListStaleUsers(ctx, start.Add(-j.opts.StaleAfter), j.opts.BatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list stale users: %w", err)
	}
	if len(addrs) == 0 {
		slog.Debug("No stale user balances")
		return Result{}, nil
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Concurrency)

	for _, addr := range addrs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := j.refreshOne(gctx, addr); err != nil {
				slog.Warn("Balance refresh failed", "wallet", addr, "error", err)
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		slog.Info("Shutdown requested, stopping refresh", "refreshed", res.Refreshed)
		return res, err
	}

	slog.Info("Balance refresh completed",
		"users", len(addrs),
		"refreshed", res.Refreshed,
		"failed", res.Failed,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return res, nil
}

func (j *Job) refreshOne(ctx context.Context, addr string) error {
	snap, err := j.snapshots.Refresh(ctx, addr)
	if err != nil {
		return err
	}
	// A stale snapshot carries no new information.
	if snap.Stale {
		return fmt.Errorf("%w: only a stale snapshot is available", balance.ErrBalanceUnavailable)
	}

	if err := j.store.UpsertUserBalance(ctx, snap.WalletAddress, "", snap); err != nil {
		return err
	}
	if err := j.store.BatchInsertBalances(ctx, storage.BalancesFromSnapshot(snap)); err != nil {
		return err
	}
	return nil
}
