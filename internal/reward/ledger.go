package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/matrixise/survey-gate/internal/metrics"
)

var ErrSurveyNotFound = errors.New("survey not found")

// ClaimResult is the outcome of a claim attempt. A rejected claim is a normal
// result, not an error.
type ClaimResult struct {
	Accepted bool   `json:"accepted"`
	Config   Config `json:"reward"`
}

// TryClaim accepts a claim when capacity remains and returns the config with
// Claimed incremented. On rejection the config is returned unchanged. It does
// no synchronization; a Ledger must serialize calls for the same survey.
func TryClaim(c Config) ClaimResult {
	if c.Exhausted() {
		return ClaimResult{Accepted: false, Config: c}
	}
	c.Claimed++
	return ClaimResult{Accepted: true, Config: c}
}

// Ledger performs atomic check-and-increment claims against stored configs
type Ledger interface {
	TryClaim(ctx context.Context, surveyID string) (ClaimResult, error)
	Get(ctx context.Context, surveyID string) (Config, error)
}

// MemoryLedger keeps reward configs in process. One mutex guards every
// counter so a claim is a single read-modify-write.
type MemoryLedger struct {
	mu      sync.Mutex
	configs map[string]Config
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{configs: make(map[string]Config)}
}

// Register stores the reward config of a survey after normalizing derived fields
func (l *MemoryLedger) Register(surveyID string, c Config) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("survey %s: %w", surveyID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[surveyID] = c
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, surveyID string) (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.configs[surveyID]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrSurveyNotFound, surveyID)
	}
	return c, nil
}

func (l *MemoryLedger) TryClaim(_ context.Context, surveyID string) (ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.configs[surveyID]
	if !ok {
		metrics.RewardClaims.WithLabelValues("error").Inc()
		return ClaimResult{}, fmt.Errorf("%w: %s", ErrSurveyNotFound, surveyID)
	}

	res := TryClaim(c)
	if !res.Accepted {
		metrics.RewardClaims.WithLabelValues("exhausted").Inc()
		slog.Info("Reward claim rejected, rewards depleted", "survey_id", surveyID, "claimed", c.Claimed)
		return res, nil
	}

	l.configs[surveyID] = res.Config
	metrics.RewardClaims.WithLabelValues("accepted").Inc()
	return res, nil
}
