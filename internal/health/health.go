// Package health reports the status of the service's dependencies.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// Pinger is a dependency that can be probed for connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// RPCProbe reports the state of the chain RPC endpoints
type RPCProbe interface {
	ChainID(ctx context.Context) (*big.Int, error)
	GetEndpointsHealth() map[string]bool
}

// BreakerReporter exposes a circuit breaker state
type BreakerReporter interface {
	BreakerState() string
}

// Options lists the dependencies to check. Nil dependencies are skipped.
type Options struct {
	Database  Pinger
	Cache     Pinger
	RPC       RPCProbe
	PriceFeed BreakerReporter

	// RefreshInterval is the expected period of the balance refresh job; 0 disables the check.
	RefreshInterval time.Duration
}

// Checker performs health checks on application dependencies
type Checker struct {
	opts           Options
	lastRunTime    time.Time
	lastRunSuccess bool
	mu             sync.RWMutex
	nowFn          func() time.Time
}

// NewChecker creates a new health checker
func NewChecker(opts Options) *Checker {
	return &Checker{opts: opts, nowFn: time.Now}
}

// UpdateLastRun updates the timestamp and status of the last refresh run
func (c *Checker) UpdateLastRun(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRunTime = c.nowFn()
	c.lastRunSuccess = success
}

// CheckStatus represents the health status of a component
type CheckStatus string

const (
	StatusOK       CheckStatus = "ok"
	StatusDegraded CheckStatus = "degraded"
	StatusError    CheckStatus = "error"
)

// HealthResponse is the JSON response structure
type HealthResponse struct {
	Status    CheckStatus            `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckDetail `json:"checks"`
	Uptime    string                 `json:"uptime,omitempty"`
}

// CheckDetail contains details about a specific health check
type CheckDetail struct {
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

var startTime = time.Now()

// Check performs all health checks and returns the aggregated status.
// The database and RPC are required; the cache, price feed and refresh job only degrade.
func (c *Checker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]CheckDetail)
	overall := StatusOK

	record := func(name string, d CheckDetail, required bool) {
		checks[name] = d
		switch {
		case d.Status == StatusError && required:
			overall = StatusError
		case d.Status != StatusOK && overall == StatusOK:
			overall = StatusDegraded
		}
	}

	if c.opts.Database != nil {
		record("database", c.checkPing(ctx, "database", c.opts.Database), true)
	}
	if c.opts.RPC != nil {
		record("rpc_endpoints", c.checkRPC(ctx), true)
	}
	if c.opts.Cache != nil {
		record("cache", c.checkPing(ctx, "cache", c.opts.Cache), false)
	}
	if c.opts.PriceFeed != nil {
		record("price_feed", c.checkPriceFeed(), false)
	}
	if c.opts.RefreshInterval > 0 {
		record("balance_refresh", c.checkRefresh(), false)
	}

	return HealthResponse{
		Status:    overall,
		Timestamp: c.nowFn(),
		Checks:    checks,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
}

func (c *Checker) checkPing(ctx context.Context, name string, p Pinger) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		slog.Error("Health check: ping failed", "component", name, "error", err)
		return CheckDetail{Status: StatusError, Message: name + " unreachable: " + err.Error()}
	}
	return CheckDetail{Status: StatusOK, Message: name + " connection healthy"}
}

// checkRPC verifies that at least one RPC endpoint is available
func (c *Checker) checkRPC(ctx context.Context) CheckDetail {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := c.opts.RPC.ChainID(ctx); err != nil {
		slog.Error("Health check: RPC endpoint failed", "error", err)
		return CheckDetail{Status: StatusError, Message: "RPC endpoint not responding: " + err.Error()}
	}

	endpoints := c.opts.RPC.GetEndpointsHealth()
	healthy := 0
	for _, ok := range endpoints {
		if ok {
			healthy++
		}
	}

	if healthy == len(endpoints) {
		return CheckDetail{Status: StatusOK, Message: "all RPC endpoints healthy"}
	}
	return CheckDetail{
		Status:  StatusDegraded,
		Message: fmt.Sprintf("%d/%d RPC endpoints healthy", healthy, len(endpoints)),
	}
}

func (c *Checker) checkPriceFeed() CheckDetail {
	state := c.opts.PriceFeed.BreakerState()
	if state == "closed" {
		return CheckDetail{Status: StatusOK, Message: "price feed circuit closed"}
	}
	return CheckDetail{Status: StatusDegraded, Message: "price feed circuit " + state}
}

// checkRefresh verifies the refresh job runs at the expected interval
func (c *Checker) checkRefresh() CheckDetail {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastRunTime.IsZero() {
		return CheckDetail{Status: StatusOK, Message: "refresh not yet executed (startup)"}
	}
	if !c.lastRunSuccess {
		return CheckDetail{Status: StatusDegraded, Message: "last refresh failed"}
	}

	// 2x interval grace period
	since := c.nowFn().Sub(c.lastRunTime)
	if since > c.opts.RefreshInterval*2 {
		return CheckDetail{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("no refresh in %s (expected every %s)", since.Round(time.Second), c.opts.RefreshInterval),
		}
	}
	return CheckDetail{
		Status:  StatusOK,
		Message: fmt.Sprintf("last refreshed %s ago", since.Round(time.Second)),
	}
}

// Handler returns an http.HandlerFunc for the health endpoint
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())

		statusCode := http.StatusOK
		if status.Status == StatusError {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(status); err != nil {
			slog.Error("Failed to encode health response", "error", err)
		}
	}
}
