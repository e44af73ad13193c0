package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	failing map[string]bool
	stale   map[string]bool
}

func (f fakeSnapshots) Refresh(_ context.Context, address string) (balance.Snapshot, error) {
	if f.failing[address] {
		return balance.Snapshot{}, fmt.Errorf("%w: rpc down", balance.ErrBalanceUnavailable)
	}
	return balance.Snapshot{
		WalletAddress:  address,
		Native:         balance.TokenBalance{Symbol: "ETH", Balance: decimal.NewFromInt(1), USDValue: decimal.NewFromInt(2000)},
		TotalUSDValue:  decimal.NewFromInt(2000),
		NativeUSDPrice: decimal.NewFromInt(2000),
		ComputedAt:     time.Now(),
		Stale:          f.stale[address],
	}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	stale    []string
	listErr  error
	cutoff   time.Time
	limit    int
	upserted map[string]bool
	history  int
}

func (f *fakeStore) ListStaleUsers(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	f.cutoff, f.limit = olderThan, limit
	return f.stale, f.listErr
}

func (f *fakeStore) UpsertUserBalance(_ context.Context, address, country string, _ balance.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if country != "" {
		return errors.New("refresh must not overwrite the country")
	}
	f.upserted[address] = true
	return nil
}

func (f *fakeStore) BatchInsertBalances(_ context.Context, rows []storage.TokenBalance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history += len(rows)
	return nil
}

func TestJobRun(t *testing.T) {
	store := &fakeStore{
		stale:    []string{"0xa", "0xb", "0xc", "0xd"},
		upserted: make(map[string]bool),
	}
	snaps := fakeSnapshots{
		failing: map[string]bool{"0xb": true},
		stale:   map[string]bool{"0xc": true},
	}

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := NewJob(snaps, store, Options{StaleAfter: 10 * time.Minute, BatchSize: 50})
	job.nowFn = func() time.Time { return now }

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Refreshed: 2, Failed: 2}, res)
	assert.Equal(t, map[string]bool{"0xa": true, "0xd": true}, store.upserted)
	assert.Equal(t, 2, store.history)
	assert.Equal(t, now.Add(-10*time.Minute), store.cutoff)
	assert.Equal(t, 50, store.limit)
}

func TestJobRunListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("connection refused"), upserted: make(map[string]bool)}
	_, err := NewJob(fakeSnapshots{}, store, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, defaultBatchSize, store.limit)
}

func TestJobRunNothingStale(t *testing.T) {
	store := &fakeStore{upserted: make(map[string]bool)}
	res, err := NewJob(fakeSnapshots{}, store, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}
