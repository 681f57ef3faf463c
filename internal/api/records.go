package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
	rsync "github.com/Mohsinsiddi/w3deploy/internal/sync"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type walletParam struct {
	Wallet string `json:"wallet" validate:"required,eth_addr"`
}

// wallet reads and validates the {wallet} path parameter.
func (s *Server) wallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := walletParam{Wallet: chi.URLParam(r, "wallet")}
	if err := s.validate.Struct(p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid wallet address", formatValidationErrors(err))
		return "", false
	}
	return records.NormalizeWallet(p.Wallet), true
}

// SaveRecordRequest is the body of POST /api/records/{wallet}.
type SaveRecordRequest struct {
	Contracts    []ContractBody        `json:"contracts" validate:"omitempty,max=1000,dive"`
	Achievements []records.Achievement `json:"achievements"`
	FID          *string               `json:"fid" validate:"omitempty,fid"`
}

// ContractBody is a deployed contract as submitted by a client.
type ContractBody struct {
	Address      string `json:"address" validate:"required,eth_addr"`
	ContractType string `json:"contractType" validate:"required"`
	ContractName string `json:"contractName"`
	TxHash       string `json:"txHash" validate:"omitempty,hexadecimal"`
	Timestamp    int64  `json:"timestamp" validate:"required"`
	InputValue   string `json:"inputValue"`
	GasSpent     string `json:"gasSpent" validate:"omitempty,numeric"`
}

func (c ContractBody) record() records.DeployedContract {
	return records.DeployedContract{
		Address:      c.Address,
		ContractType: c.ContractType,
		ContractName: c.ContractName,
		TxHash:       c.TxHash,
		Timestamp:    c.Timestamp,
		InputValue:   c.InputValue,
		GasSpent:     c.GasSpent,
	}
}

// GetRecord handles GET /api/records/{wallet}.
func (s *Server) GetRecord(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.wallet(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), wallet)
	if err != nil {
		s.internalError(w, r, "Failed to load record", err)
		return
	}
	all, err := s.store.All(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to load leaderboard", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"record":  rec,
		"stats":   rsync.ComputeStats(wallet, rec, records.Leaderboard(all)),
	})
}

// SaveRecord handles POST /api/records/{wallet}. Submitted contracts are
// merged into the stored set by address, with the submitted copy winning so
// clients can fill in gasSpent. Achievements are recomputed from the merged
// count; a submitted unlock is kept only when that count reaches its
// milestone.
func (s *Server) SaveRecord(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.wallet(w, r)
	if !ok {
		return
	}
	var req SaveRecordRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	existing, err := s.store.Get(r.Context(), wallet)
	if err != nil {
		s.internalError(w, r, "Failed to load record", err)
		return
	}

	incoming := make([]records.DeployedContract, len(req.Contracts))
	for i, c := range req.Contracts {
		incoming[i] = c.record()
	}
	merged := records.MergeContracts(incoming, existing.Contracts)

	// Submitted unlocks only count when the merged total reaches them.
	prev := records.MergeAchievements(existing.Achievements, records.Earned(req.Achievements, len(merged)))
	now := s.now().UnixMilli()
	patch := records.Patch{
		Contracts:    merged,
		Achievements: records.RecomputeAchievements(prev, len(merged), now),
		LastUpdated:  now,
	}
	if req.FID != nil && existing.FID == "" {
		patch.FID = req.FID
	}
	if err := s.store.Merge(r.Context(), wallet, patch); err != nil {
		s.internalError(w, r, "Failed to save record", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"record":  existing.Apply(patch),
	})
}

// RecordClick handles POST /api/records/{wallet}/clicks.
func (s *Server) RecordClick(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.wallet(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), wallet)
	if err != nil {
		s.internalError(w, r, "Failed to load record", err)
		return
	}
	clicks := rec.Clicks + 1
	if err := s.store.Merge(r.Context(), wallet, records.Patch{Clicks: &clicks, LastUpdated: s.now().UnixMilli()}); err != nil {
		s.internalError(w, r, "Failed to save record", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clicks": clicks})
}

// Leaderboard handles GET /api/leaderboard?limit=.
func (s *Server) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	all, err := s.store.All(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to load leaderboard", err)
		return
	}
	board := records.Leaderboard(all)
	total := len(board)
	if len(board) > limit {
		board = board[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"leaderboard": board,
		"total":       total,
	})
}

// ResumeResponse is the shareable summary of one wallet.
type ResumeResponse struct {
	Success      bool                       `json:"success"`
	Wallet       string                     `json:"wallet"`
	Stats        rsync.Stats                `json:"stats"`
	Contracts    []records.DeployedContract `json:"contracts"`
	ReferralCode string                     `json:"referralCode,omitempty"`
}

// Resume handles GET /api/resume/{wallet}.
func (s *Server) Resume(w http.ResponseWriter, r *http.Request) {
	wallet, ok := s.wallet(w, r)
	if !ok {
		return
	}
	all, err := s.store.All(r.Context())
	if err != nil {
		s.internalError(w, r, "Failed to load records", err)
		return
	}
	rec, ok := all[wallet]
	if !ok || rec.IsEmpty() {
		writeError(w, http.StatusNotFound, "No deployments for wallet", nil)
		return
	}

	contracts := rec.Clone().Contracts
	records.SortByTimestamp(contracts)
	resp := ResumeResponse{
		Success:   true,
		Wallet:    wallet,
		Stats:     rsync.ComputeStats(wallet, rec, records.Leaderboard(all)),
		Contracts: contracts,
	}
	if rec.FID != "" {
		resp.ReferralCode = referral.CodeFor(rec.FID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.log.WithField("request_id", RequestIDFromContext(r.Context())).WithError(err).Error(msg)
	writeError(w, http.StatusInternalServerError, msg, err.Error())
}
