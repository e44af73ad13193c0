package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/matrixise/survey-gate/internal/eligibility"
	"github.com/matrixise/survey-gate/internal/reward"
	"github.com/matrixise/survey-gate/internal/storage"
	"github.com/shopspring/decimal"
)

type snapshotResponse struct {
	balance.Snapshot
	Bracket bracket.Bracket `json:"bracket"`
}

func newSnapshotResponse(s balance.Snapshot) snapshotResponse {
	return snapshotResponse{Snapshot: s, Bracket: bracket.Classify(s.NativeBalance())}
}

// snapshotError maps aggregation failures to HTTP statuses
func snapshotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, balance.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, balance.ErrBalanceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "wallet balance unavailable, retry later")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type sessionRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
	Country string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

type sessionResponse struct {
	Address  string           `json:"address"`
	Country  string           `json:"country"`
	Snapshot snapshotResponse `json:"snapshot"`
}

// createSession refreshes the wallet snapshot on login and records the
// user's last-known balance
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	snap, err := s.snapshots.Refresh(ctx, req.Address)
	if err != nil {
		slog.Error("Login balance refresh failed", "wallet", req.Address, "error", err)
		snapshotError(w, err)
		return
	}

	if err := s.store.UpsertUserBalance(ctx, snap.WalletAddress, req.Country, snap); err != nil {
		slog.Error("Failed to record user balance", "wallet", snap.WalletAddress, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record user")
		return
	}
	if !snap.Stale {
		if err := s.store.BatchInsertBalances(ctx, storage.BalancesFromSnapshot(snap)); err != nil {
			slog.Warn("Failed to record balance history", "wallet", snap.WalletAddress, "error", err)
		}
	}

	country := req.Country
	if u, err := s.store.GetUser(ctx, snap.WalletAddress); err == nil {
		country = u.Country
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Address:  snap.WalletAddress,
		Country:  country,
		Snapshot: newSnapshotResponse(snap),
	})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		snapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(snap))
}

type surveyView struct {
	storage.Survey
	RewardsAvailable bool   `json:"rewards_available"`
	Remaining        *int64 `json:"remaining,omitempty"`
}

func newSurveyViews(surveys []storage.Survey) []surveyView {
	views := make([]surveyView, len(surveys))
	for i, sv := range surveys {
		views[i] = surveyView{
			Survey:           sv,
			RewardsAvailable: !sv.Reward.Exhausted(),
			Remaining:        sv.Reward.Remaining(),
		}
	}
	return views
}

// listSurveys returns active surveys. With ?wallet= only the surveys whose
// targeting admits that wallet are returned.
func (s *Server) listSurveys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	surveys, err := s.store.ListActiveSurveys(ctx)
	if err != nil {
		slog.Error("Failed to list surveys", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list surveys")
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeJSON(w, http.StatusOK, newSurveyViews(surveys))
		return
	}

	session, err := s.session(r, wallet)
	if err != nil {
		snapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSurveyViews(eligibility.Filter(session, surveys)))
}

// session builds the browsing session of wallet from its user record and
// current snapshot. When no snapshot can be computed the recorded balance is used.
func (s *Server) session(r *http.Request, wallet string) (eligibility.Session, error) {
	ctx := r.Context()
	_, addr, err := balance.NormalizeAddress(wallet)
	if err != nil {
		return eligibility.Session{}, err
	}

	session := eligibility.Session{Address: addr}
	user, userErr := s.store.GetUser(ctx, addr)
	if userErr == nil {
		session.Country = user.Country
	}

	snap, err := s.snapshots.GetSnapshot(ctx, addr)
	switch {
	case err == nil:
		session.Balance = snap.NativeBalance()
	case userErr == nil && user.NativeBalance.Valid:
		slog.Warn("Using recorded balance for survey targeting", "wallet", addr, "error", err)
		session.Balance = user.NativeBalance.Decimal
	default:
		return eligibility.Session{}, err
	}
	return session, nil
}

type reachRequest struct {
	Rule eligibility.Rule `json:"rule"`
}

type reachResponse struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

func (s *Server) estimateReach(w http.ResponseWriter, r *http.Request) {
	var req reachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Rule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, "reach unknown")
		return
	}

	population := make([]eligibility.User, len(users))
	for i, u := range users {
		population[i] = u.Targeting()
	}

	writeJSON(w, http.StatusOK, reachResponse{
		Count: eligibility.CountEligible(req.Rule, population),
		Total: len(population),
	})
}

type claimResponse struct {
	Accepted   bool            `json:"accepted"`
	Claimed    int64           `json:"claimed"`
	Remaining  *int64          `json:"remaining,omitempty"`
	TotalValue decimal.Decimal `json:"total_value"`
	Error      string          `json:"error,omitempty"`
}

// claimReward consumes one reward unit. A depleted reward answers 409 and the
// submission must not be granted a reward.
func (s *Server) claimReward(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.ledger.TryClaim(r.Context(), id)
	if err != nil {
		if errors.Is(err, reward.ErrSurveyNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("Reward claim failed", "survey_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "claim failed")
		return
	}

	resp := claimResponse{
		Accepted:   res.Accepted,
		Claimed:    res.Config.Claimed,
		Remaining:  res.Config.Remaining(),
		TotalValue: res.Config.TotalValue,
	}
	if !res.Accepted {
		resp.Error = "rewards depleted"
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
