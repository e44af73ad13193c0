package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/matrixise/survey-gate/internal/metrics"
	"github.com/matrixise/survey-gate/internal/reward"
)

const surveyColumns = `id, title, description, active,
	country_mode, countries, balance_mode, brackets,
	reward_kind, points_per_user, supply, amount_per_user, token_type,
	prize_count, prize_description, total_value, reward_capacity, rewards_claimed,
	created_at`

func scanSurvey(row pgx.Row) (Survey, error) {
	var (
		s        Survey
		kind     string
		capacity *int64
	)
	err := row.Scan(
		&s.ID, &s.Title, &s.Description, &s.Active,
		&s.Targeting.Country.Mode, &s.Targeting.Country.Countries,
		&s.Targeting.Balance.Mode, &s.Targeting.Balance.Brackets,
		&kind, &s.Reward.PointsPerUser, &s.Reward.Supply, &s.Reward.AmountPerUser, &s.Reward.TokenType,
		&s.Reward.PrizeCount, &s.Reward.Description, &s.Reward.TotalValue, &capacity, &s.Reward.Claimed,
		&s.CreatedAt,
	)
	if err != nil {
		return Survey{}, err
	}

	s.Reward.Kind = reward.Kind(kind)
	if s.Reward.Kind == reward.KindPoints {
		s.Reward.MaxUsers = capacity
	}
	s.Reward.Normalize()
	return s, nil
}

// SaveSurvey inserts or replaces a survey. The claim counter of an existing
// survey is kept.
func (s *Store) SaveSurvey(ctx context.Context, sv Survey) error {
	sv.Reward.Normalize()
	if err := sv.Reward.Validate(); err != nil {
		return fmt.Errorf("survey %s: %w", sv.ID, err)
	}
	if err := sv.Targeting.Validate(); err != nil {
		return fmt.Errorf("survey %s: %w", sv.ID, err)
	}

	countries := sv.Targeting.Country.Countries
	if countries == nil {
		countries = []string{}
	}
	brackets := sv.Targeting.Balance.Brackets
	if brackets == nil {
		brackets = []string{}
	}

	r := sv.Reward
	_, err := s.pool.Exec(ctx, `
		INSERT INTO surveys (
			id, title, description, active,
			country_mode, countries, balance_mode, brackets,
			reward_kind, points_per_user, supply, amount_per_user, token_type,
			prize_count, prize_description, total_value, reward_capacity, rewards_claimed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			title             = EXCLUDED.title,
			description       = EXCLUDED.description,
			active            = EXCLUDED.active,
			country_mode      = EXCLUDED.country_mode,
			countries         = EXCLUDED.countries,
			balance_mode      = EXCLUDED.balance_mode,
			brackets          = EXCLUDED.brackets,
			reward_kind       = EXCLUDED.reward_kind,
			points_per_user   = EXCLUDED.points_per_user,
			supply            = EXCLUDED.supply,
			amount_per_user   = EXCLUDED.amount_per_user,
			token_type        = EXCLUDED.token_type,
			prize_count       = EXCLUDED.prize_count,
			prize_description = EXCLUDED.prize_description,
			total_value       = EXCLUDED.total_value,
			reward_capacity   = EXCLUDED.reward_capacity`,
		sv.ID, sv.Title, sv.Description, sv.Active,
		sv.Targeting.Country.Mode, countries, sv.Targeting.Balance.Mode, brackets,
		string(r.Kind), r.PointsPerUser, r.Supply, r.AmountPerUser, r.TokenType,
		r.PrizeCount, r.Description, r.TotalValue, r.Capacity(), r.Claimed,
	)
	if err != nil {
		return fmt.Errorf("failed to save survey %s: %w", sv.ID, err)
	}
	return nil
}

// GetSurvey returns a survey by id
func (s *Store) GetSurvey(ctx context.Context, id string) (Survey, error) {
	sv, err := scanSurvey(s.pool.QueryRow(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Survey{}, fmt.Errorf("%w: %s", reward.ErrSurveyNotFound, id)
		}
		return Survey{}, fmt.Errorf("failed to get survey %s: %w", id, err)
	}
	return sv, nil
}

// ListActiveSurveys returns active surveys, newest first
func (s *Store) ListActiveSurveys(ctx context.Context) ([]Survey, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}

	surveys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Survey, error) {
		return scanSurvey(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan surveys: %w", err)
	}
	return surveys, nil
}

// SurveysFor returns the active surveys whose targeting admits the session
func (s *Store) SurveysFor(ctx context.Context, session eligibility.Session) ([]Survey, error) {
	surveys, err := s.ListActiveSurveys(ctx)
	if err != nil {
		return nil, err
	}
	return eligibility.Filter(session, surveys), nil
}

// Get returns the reward config of a survey
func (s *Store) Get(ctx context.Context, surveyID string) (reward.Config, error) {
	sv, err := s.GetSurvey(ctx, surveyID)
	if err != nil {
		return reward.Config{}, err
	}
	return sv.Reward, nil
}

// TryClaim increments the claim counter in a single conditional UPDATE so
// concurrent claims can never push it past the capacity.
func (s *Store) TryClaim(ctx context.Context, surveyID string) (reward.ClaimResult, error) {
	sv, err := scanSurvey(s.pool.QueryRow(ctx, `
		UPDATE surveys
		SET rewards_claimed = rewards_claimed + 1
		WHERE id = $1 AND (reward_capacity IS NULL OR rewards_claimed < reward_capacity)
		RETURNING `+surveyColumns, surveyID))
	if err == nil {
		metrics.RewardClaims.WithLabelValues("accepted").Inc()
		return reward.ClaimResult{Accepted: true, Config: sv.Reward}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		metrics.RewardClaims.WithLabelValues("error").Inc()
		return reward.ClaimResult{}, fmt.Errorf("failed to claim reward for survey %s: %w", surveyID, err)
	}

	// No row updated: either the survey does not exist or it is exhausted
	cfg, err := s.Get(ctx, surveyID)
	if err != nil {
		metrics.RewardClaims.WithLabelValues("error").Inc()
		return reward.ClaimResult{}, err
	}
	metrics.RewardClaims.WithLabelValues("exhausted").Inc()
	slog.Info("Reward claim rejected, rewards depleted", "survey_id", surveyID, "claimed", cfg.Claimed)
	return reward.ClaimResult{Accepted: false, Config: cfg}, nil
}

var _ reward.Ledger = (*Store)(nil)
