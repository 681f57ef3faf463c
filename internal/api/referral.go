package api

import (
	"errors"
	"net/http"

	"github.com/Mohsinsiddi/w3deploy/internal/price"
	"github.com/Mohsinsiddi/w3deploy/internal/referral"
)

type validateReferralRequest struct {
	Code string `json:"code" validate:"required"`
}

type trackReferralRequest struct {
	Code   string `json:"code" validate:"required"`
	FID    string `json:"fid" validate:"required,fid"`
	Wallet string `json:"wallet" validate:"required,eth_addr"`
}

// ValidateReferral handles POST /api/referral/validate. An unusable code is
// still a 200 with valid false.
func (s *Server) ValidateReferral(w http.ResponseWriter, r *http.Request) {
	var req validateReferralRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	v, err := s.referrals.Validate(r.Context(), req.Code)
	if err != nil {
		s.internalError(w, r, "Failed to validate referral code", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// TrackReferral handles POST /api/referral/track.
func (s *Server) TrackReferral(w http.ResponseWriter, r *http.Request) {
	var req trackReferralRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	rec, err := s.referrals.Attribute(r.Context(), req.Code, req.FID, req.Wallet)
	switch {
	case err == nil:
	case errors.Is(err, referral.ErrInvalidCode),
		errors.Is(err, referral.ErrInvalidFID),
		errors.Is(err, referral.ErrReferrerIneligible),
		errors.Is(err, referral.ErrSelfReferral):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	case errors.Is(err, referral.ErrDuplicateReferral),
		errors.Is(err, referral.ErrAlreadyReferred):
		writeError(w, http.StatusConflict, err.Error(), nil)
		return
	default:
		s.internalError(w, r, "Failed to track referral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"referralCount": rec.ReferralCount,
		"totalPoints":   rec.TotalPoints,
	})
}

// Price handles GET /api/price?chain=. The chain defaults to base.
func (s *Server) Price(w http.ResponseWriter, r *http.Request) {
	chainName := r.URL.Query().Get("chain")
	if chainName == "" {
		chainName = "base"
	}
	if !price.Supported(chainName) {
		writeError(w, http.StatusBadRequest, "Unsupported chain", chainName)
		return
	}
	q, err := s.prices.Quote(r.Context(), chainName)
	if errors.Is(err, price.ErrRateLimited) {
		writeError(w, http.StatusServiceUnavailable, "Price feed is rate limited, try again shortly", nil)
		return
	}
	if err != nil {
		s.internalError(w, r, "Failed to fetch price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "quote": q})
}
