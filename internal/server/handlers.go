package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/middleware"
	"github.com/aimerfeng/minerewards/internal/rewards"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateLedgerRequest is the body of POST /ledger
type CreateLedgerRequest struct {
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

// ReferralRequest is the body of POST /referrals
type ReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// AdClaimRequest carries the ad network's completion proof
type AdClaimRequest struct {
	AdProof string `json:"ad_proof" binding:"required"`
}

// RewardResponse is returned by every claim. A zero reward is a normal
// outcome; the status endpoint tells the caller why. Amounts are encoded
// as decimal strings so no precision is lost in transit.
type RewardResponse struct {
	Operation string          `json:"operation"`
	Reward    decimal.Decimal `json:"reward"`
}

func (s *APIServer) handleCreateLedger(c *gin.Context) {
	var req CreateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationError(err))
		return
	}

	ctx := c.Request.Context()
	_, err := s.service.CreateLedger(ctx, req.Username, req.ReferralCode)
	created := err == nil
	if err != nil && !errors.Is(err, ledger.ErrLedgerExists) {
		respondDomainError(c, err)
		return
	}

	st, err := s.service.Status(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	// An existing ledger without a referrer still takes the supplied code.
	code := ledger.NormalizeReferralCode(req.ReferralCode)
	if !created && code != "" && st.Ledger.Profile.ReferredBy == "" {
		if err := s.service.RegisterReferral(ctx, code); err != nil {
			respondDomainError(c, err)
			return
		}
		if st, err = s.service.Status(ctx); err != nil {
			respondDomainError(c, err)
			return
		}
	}
	if created {
		c.JSON(http.StatusCreated, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *APIServer) handleStatus(c *gin.Context) {
	st, err := s.service.Status(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *APIServer) handleRegisterReferral(c *gin.Context) {
	var req ReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationError(err))
		return
	}
	if err := s.service.RegisterReferral(c.Request.Context(), req.Code); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referred_by": ledger.NormalizeReferralCode(req.Code)})
}

// handleLiveBalance projects a client-held snapshot; it reads no ledger
func (s *APIServer) handleLiveBalance(c *gin.Context) {
	var snap rewards.MiningSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		respondError(c, validationError(err))
		return
	}
	now := s.service.Now()
	c.JSON(http.StatusOK, gin.H{
		"live_balance": rewards.LiveBalance(snap, now),
		"as_of":        now,
	})
}

func (s *APIServer) handleStartMining(c *gin.Context) {
	s.mutateMining(c, s.service.StartMining)
}

func (s *APIServer) handleStopMining(c *gin.Context) {
	s.mutateMining(c, s.service.StopMining)
}

// mutateMining runs a session transition and answers with the new status
func (s *APIServer) mutateMining(c *gin.Context, op func(ctx context.Context) error) {
	ctx := c.Request.Context()
	if err := op(ctx); err != nil {
		respondDomainError(c, err)
		return
	}
	st, err := s.service.Status(ctx)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *APIServer) handleClaimMining(c *gin.Context) {
	reward, err := s.service.ClaimMining(c.Request.Context())
	s.respondReward(c, rewards.OpClaimMining, reward, err)
}

func (s *APIServer) handleClaimDaily(c *gin.Context) {
	reward, err := s.service.ClaimDaily(c.Request.Context())
	s.respondReward(c, rewards.OpClaimDaily, reward, err)
}

func (s *APIServer) handleClaimBoost(c *gin.Context) {
	if !s.verifyAd(c) {
		return
	}
	reward, err := s.service.ClaimBoost(c.Request.Context())
	s.respondReward(c, rewards.OpClaimBoost, reward, err)
}

func (s *APIServer) handleClaimWatchEarn(c *gin.Context) {
	if !s.verifyAd(c) {
		return
	}
	reward, err := s.service.ClaimWatchEarn(c.Request.Context())
	s.respondReward(c, rewards.OpClaimWatchEarn, reward, err)
}

// verifyAd checks the ad proof of the request. On failure it responds and
// returns false; the reward operation must not run.
func (s *APIServer) verifyAd(c *gin.Context) bool {
	var req AdClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, validationError(err))
		return false
	}
	uid := middleware.GetUserIDFromContext(c)
	if err := s.verifier.Verify(c.Request.Context(), uid, req.AdProof); err != nil {
		respondDomainError(c, err)
		return false
	}
	return true
}

func (s *APIServer) respondReward(c *gin.Context, op string, reward decimal.Decimal, err error) {
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, RewardResponse{Operation: op, Reward: reward})
}
